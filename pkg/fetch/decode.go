package fetch

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"io"
)

// Kind selects the payload decoder. The set is closed and each variant has a
// defined failure mode.
type Kind int

const (
	// KindText treats the payload as plain text. Never fails to decode.
	KindText Kind = iota
	// KindJSON decodes the payload as JSON.
	KindJSON
	// KindXML decodes the payload as XML.
	KindXML
	// KindBinary treats the payload as raw bytes. Never fails to decode.
	KindBinary
)

// String returns the format name used in log and error messages.
func (k Kind) String() string {
	switch k {
	case KindJSON:
		return "JSON"
	case KindXML:
		return "XML"
	case KindBinary:
		return "binary"
	default:
		return "text"
	}
}

// ext returns the default cache file extension for the kind.
func (k Kind) ext() string {
	switch k {
	case KindJSON:
		return ".json"
	case KindXML:
		return ".xml"
	default:
		return ".html"
	}
}

// decode unmarshals data into target according to the kind. A nil target
// still validates that the payload parses, so decode failures are detected
// (and classified by the caller) even when no destination is wanted.
func decode(kind Kind, data []byte, target any) error {
	switch kind {
	case KindJSON:
		if target == nil {
			var discard any
			target = &discard
		}
		return json.Unmarshal(data, target)
	case KindXML:
		if target == nil {
			return checkWellFormedXML(data)
		}
		return xml.Unmarshal(data, target)
	default:
		return nil
	}
}

// checkWellFormedXML walks all tokens without building a document.
func checkWellFormedXML(data []byte) error {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
