package connection

import (
	"encoding/json"
	"encoding/xml"
	"fmt"

	"unshub/internal/api"

	"github.com/vmihailenco/msgpack/v5"
)

// outboundPoint is the envelope serialised for JSON, XML and MessagePack
// outputs. Timestamp and quality are included only when the output asks.
type outboundPoint struct {
	XMLName   xml.Name    `json:"-" msgpack:"-" xml:"dataPoint"`
	Topic     string      `json:"topic" msgpack:"topic" xml:"topic"`
	Value     interface{} `json:"value" msgpack:"value" xml:"value"`
	Timestamp int64       `json:"timestamp,omitempty" msgpack:"timestamp,omitempty" xml:"timestamp,omitempty"`
	Quality   string      `json:"quality,omitempty" msgpack:"quality,omitempty" xml:"quality,omitempty"`
}

// EncodePayload serialises a data point according to the output's format.
// Raw renders the bare value; the structured formats wrap it in an envelope
// honouring the include flags. SparkplugB currently falls back to the JSON
// envelope; the binary protobuf encoding is not implemented yet.
func EncodePayload(dp api.DataPoint, out OutputConfiguration) ([]byte, error) {
	switch out.Format {
	case FormatRaw:
		return []byte(fmt.Sprintf("%v", dp.Value)), nil
	case FormatXML:
		// XML cannot marshal arbitrary interface values; render the value
		// as text.
		e := envelope(dp, out)
		return xml.Marshal(struct {
			XMLName   xml.Name `xml:"dataPoint"`
			Topic     string   `xml:"topic"`
			Value     string   `xml:"value"`
			Timestamp int64    `xml:"timestamp,omitempty"`
			Quality   string   `xml:"quality,omitempty"`
		}{Topic: e.Topic, Value: fmt.Sprintf("%v", e.Value), Timestamp: e.Timestamp, Quality: e.Quality})
	case FormatMessagePack:
		return msgpack.Marshal(envelope(dp, out))
	case FormatJSON, FormatSparkplugB, "":
		return json.Marshal(envelope(dp, out))
	default:
		return nil, api.NewValidationError("output configuration",
			"unsupported format "+string(out.Format))
	}
}

func envelope(dp api.DataPoint, out OutputConfiguration) outboundPoint {
	p := outboundPoint{Topic: dp.Topic, Value: dp.Value}
	if out.IncludeTimestamp {
		p.Timestamp = dp.Timestamp.UTC().UnixMilli()
	}
	if out.IncludeQuality {
		p.Quality = string(dp.Quality)
	}
	return p
}

// OutputTopic derives the wire topic an output publishes a data point to:
// the UNS path plus the point's UNS name when requested (and resolvable),
// otherwise the source topic, with the configured prefix applied.
func OutputTopic(dp api.DataPoint, out OutputConfiguration) string {
	topic := dp.Topic
	if out.UseUNSPathAsTopic {
		if full := dp.Path.FullPath(); full != "" {
			topic = full
			if dp.UNSName != "" {
				topic = full + "/" + dp.UNSName
			}
		}
	}
	if out.TopicPrefix != "" {
		return out.TopicPrefix + "/" + topic
	}
	return topic
}
