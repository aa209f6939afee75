package notification

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// UNSConfig points at the UNS XML-RPC endpoint of the notification
// channel.
type UNSConfig struct {
	URL       string
	ChannelID string
	Username  string
	Password  string
}

// UNSDispatcher talks XML-RPC to the UNS service.
type UNSDispatcher struct {
	cfg    UNSConfig
	client *http.Client
}

func NewUNSDispatcher(cfg UNSConfig) *UNSDispatcher {
	return &UNSDispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (d *UNSDispatcher) SendNotification(ctx context.Context, triples []Triple) error {
	rows := make([]interface{}, len(triples))
	for i, t := range triples {
		rows[i] = []interface{}{t.Subject, t.Predicate, t.Object}
	}
	return d.call(ctx, "sendNotification", d.cfg.ChannelID, rows)
}

func (d *UNSDispatcher) MakeSubscription(ctx context.Context, userID string, filters []map[string]string) error {
	groups := make([]interface{}, len(filters))
	for i, f := range filters {
		groups[i] = f
	}
	return d.call(ctx, "makeSubscription", d.cfg.ChannelID, userID, groups)
}

func (d *UNSDispatcher) call(ctx context.Context, method string, params ...interface{}) error {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<methodCall><methodName>")
	xml.EscapeText(&buf, []byte(method))
	buf.WriteString("</methodName><params>")
	for _, p := range params {
		buf.WriteString("<param>")
		if err := writeValue(&buf, p); err != nil {
			return err
		}
		buf.WriteString("</param>")
	}
	buf.WriteString("</params></methodCall>")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, &buf)
	if err != nil {
		return fmt.Errorf("building uns request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")
	if d.cfg.Username != "" {
		req.SetBasicAuth(d.cfg.Username, d.cfg.Password)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("calling uns %s: %w", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading uns response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("uns %s: status %s", method, resp.Status)
	}
	if strings.Contains(string(body), "<fault>") {
		return fmt.Errorf("uns %s: fault: %s", method, faultString(body))
	}
	return nil
}

// writeValue encodes an XML-RPC <value>. Only the shapes the two UNS
// methods need are supported.
func writeValue(buf *bytes.Buffer, v interface{}) error {
	buf.WriteString("<value>")
	switch x := v.(type) {
	case string:
		buf.WriteString("<string>")
		xml.EscapeText(buf, []byte(x))
		buf.WriteString("</string>")
	case []interface{}:
		buf.WriteString("<array><data>")
		for _, item := range x {
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteString("</data></array>")
	case map[string]string:
		buf.WriteString("<struct>")
		for name, value := range x {
			buf.WriteString("<member><name>")
			xml.EscapeText(buf, []byte(name))
			buf.WriteString("</name>")
			if err := writeValue(buf, value); err != nil {
				return err
			}
			buf.WriteString("</member>")
		}
		buf.WriteString("</struct>")
	default:
		return fmt.Errorf("uns: cannot encode %T as xml-rpc value", v)
	}
	buf.WriteString("</value>")
	return nil
}

func faultString(body []byte) string {
	var fault struct {
		Members []struct {
			Name  string `xml:"name"`
			Value string `xml:"value>string"`
		} `xml:"fault>value>struct>member"`
	}
	if err := xml.Unmarshal(body, &fault); err != nil {
		return "unparseable fault"
	}
	for _, m := range fault.Members {
		if m.Name == "faultString" {
			return m.Value
		}
	}
	return "unknown fault"
}

// NoopDispatcher drops everything. Used when no notification channel
// is configured.
type NoopDispatcher struct{}

func (NoopDispatcher) SendNotification(context.Context, []Triple) error { return nil }

func (NoopDispatcher) MakeSubscription(context.Context, string, []map[string]string) error {
	return nil
}
