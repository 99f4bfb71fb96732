package kafka

import (
	"sort"

	"github.com/segmentio/kafka-go"
)

// headerCarrier exposes message headers to the otel propagator. Set overwrites an existing key
// so a re-published message never carries two traceparent headers.
type headerCarrier struct{ hs *[]kafka.Header }

func (c headerCarrier) Get(key string) string {
	for _, h := range *c.hs {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i := range *c.hs {
		if (*c.hs)[i].Key == key {
			(*c.hs)[i].Value = []byte(value)
			return
		}
	}
	*c.hs = append(*c.hs, kafka.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(*c.hs))
	for _, h := range *c.hs {
		keys = append(keys, h.Key)
	}
	return keys
}

// attributeHeaders renders publish attributes (channel, recipient, event ids) as headers, sorted by key.
func attributeHeaders(attrs map[string]string) []kafka.Header {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	hs := make([]kafka.Header, 0, len(keys)+1)
	for _, k := range keys {
		hs = append(hs, kafka.Header{Key: k, Value: []byte(attrs[k])})
	}
	return hs
}
