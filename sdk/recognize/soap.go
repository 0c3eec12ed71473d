package recognize

import (
	"errors"
	"strings"

	"github.com/beevik/etree"
)

const soapNamespace = "http://clapi.itraff.pl"

var envelopeNamespaces = [][2]string{
	{"xmlns:SOAP-ENV", "http://schemas.xmlsoap.org/soap/envelope/"},
	{"xmlns:ns1", soapNamespace},
	{"xmlns:xsi", "http://www.w3.org/2001/XMLSchema-instance"},
	{"xmlns:xsd", "http://www.w3.org/2001/XMLSchema"},
	{"xmlns:ns2", "http://xml.apache.org/xml-soap"},
	{"xmlns:SOAP-ENC", "http://schemas.xmlsoap.org/soap/encoding/"},
	{"SOAP-ENV:encodingStyle", "http://schemas.xmlsoap.org/soap/encoding/"},
}

// Response is the flattened key/value content of a SOAP reply.
type Response map[string]string

// field is one typed child of the operation element. A field with entries is
// encoded as an ns2:Map.
type field struct {
	name    string
	xsiType string
	value   string
	entries [][2]string
}

func stringField(name, value string) field {
	return field{name: name, xsiType: "xsd:string", value: value}
}

func mapField(name string, entries ...[2]string) field {
	return field{name: name, xsiType: "ns2:Map", entries: entries}
}

func (f field) appendTo(parent *etree.Element) {
	el := parent.CreateElement(f.name)
	el.CreateAttr("xsi:type", f.xsiType)
	if f.entries == nil {
		el.SetText(f.value)
		return
	}
	for _, entry := range f.entries {
		item := el.CreateElement("item")
		stringField("key", entry[0]).appendTo(item)
		stringField("value", entry[1]).appendTo(item)
	}
}

func soapAction(operation string) string {
	return `"` + soapNamespace + "#" + operation + `"`
}

// buildEnvelope renders the SOAP 1.1 request for operation. Field values are
// escaped by the serializer.
func buildEnvelope(operation string, fields []field) ([]byte, error) {
	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalEndTags = true

	envelope := doc.CreateElement("SOAP-ENV:Envelope")
	for _, ns := range envelopeNamespaces {
		envelope.CreateAttr(ns[0], ns[1])
	}
	op := envelope.CreateElement("SOAP-ENV:Body").CreateElement("ns1:" + operation)
	for _, f := range fields {
		f.appendTo(op)
	}
	return doc.WriteToBytes()
}

// parseResponse collects every item element as a key/value pair. Items whose
// value holds child elements are skipped; the items nested inside them are
// still visited.
func parseResponse(body []byte) (Response, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, errors.New("empty response document")
	}

	out := make(Response)
	for _, item := range doc.FindElements("//item") {
		key := item.SelectElement("key")
		value := item.SelectElement("value")
		if key == nil || value == nil {
			continue
		}
		if len(value.ChildElements()) > 0 {
			continue
		}
		out[key.Text()] = value.Text()
	}
	return out, nil
}

// parseFault extracts a SOAP faultstring, if the body carries one.
func parseFault(body []byte) string {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return ""
	}
	if el := doc.FindElement("//faultstring"); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}
