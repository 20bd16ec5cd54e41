package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const orderSchema = `<?xml version="1.0" encoding="UTF-8"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:simpleType name="Status">
    <xs:restriction base="xs:string">
      <xs:enumeration value="NEW"/>
      <xs:enumeration value="SHIPPED"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:complexType name="Item">
    <xs:sequence>
      <xs:element name="sku" type="xs:string"/>
      <xs:element name="quantity">
        <xs:simpleType>
          <xs:restriction base="xs:int">
            <xs:minInclusive value="1"/>
            <xs:maxInclusive value="99"/>
          </xs:restriction>
        </xs:simpleType>
      </xs:element>
    </xs:sequence>
    <xs:attribute name="gift" type="xs:boolean"/>
  </xs:complexType>
  <xs:element name="order">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="id" type="xs:positiveInteger"/>
        <xs:element name="status" type="Status"/>
        <xs:element name="item" type="Item" maxOccurs="unbounded"/>
        <xs:element name="note" type="xs:string" minOccurs="0"/>
      </xs:sequence>
      <xs:attribute name="version" type="xs:string" use="required"/>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestXSD_Valid(t *testing.T) {
	schema, err := ParseXSD(orderSchema)
	require.NoError(t, err)

	doc := `<order version="1">
  <id>7</id>
  <status>NEW</status>
  <item gift="true"><sku>A-1</sku><quantity>2</quantity></item>
  <item><sku>B-2</sku><quantity>1</quantity></item>
</order>`
	assert.Empty(t, schema.Validate(doc))
}

func TestXSD_Violations(t *testing.T) {
	schema, err := ParseXSD(orderSchema)
	require.NoError(t, err)

	tests := []struct {
		name    string
		doc     string
		message string
	}{
		{
			name:    "missing required attribute",
			doc:     `<order><id>1</id><status>NEW</status><item><sku>a</sku><quantity>1</quantity></item></order>`,
			message: `missing required attribute "version"`,
		},
		{
			name:    "enumeration",
			doc:     `<order version="1"><id>1</id><status>LOST</status><item><sku>a</sku><quantity>1</quantity></item></order>`,
			message: `is not one of`,
		},
		{
			name:    "range facet",
			doc:     `<order version="1"><id>1</id><status>NEW</status><item><sku>a</sku><quantity>120</quantity></item></order>`,
			message: `greater than`,
		},
		{
			name:    "builtin type",
			doc:     `<order version="1"><id>zero</id><status>NEW</status><item><sku>a</sku><quantity>1</quantity></item></order>`,
			message: `not a valid positiveInteger`,
		},
		{
			name:    "missing element",
			doc:     `<order version="1"><id>1</id><status>NEW</status></order>`,
			message: `expected element "item"`,
		},
		{
			name:    "unexpected element",
			doc:     `<order version="1"><id>1</id><status>NEW</status><item><sku>a</sku><quantity>1</quantity></item><extra/></order>`,
			message: `unexpected element "extra"`,
		},
		{
			name:    "unknown root",
			doc:     `<invoice/>`,
			message: `no global element declaration`,
		},
		{
			name:    "malformed document",
			doc:     `<order version="1"><</order>`,
			message: `invalid xml`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			violations := schema.Validate(tt.doc)
			require.NotEmpty(t, violations)
			assert.Contains(t, strings.Join(violations, "\n"), tt.message)
		})
	}
}

func TestXSD_Choice(t *testing.T) {
	schema, err := ParseXSD(`<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="payment">
    <xs:complexType>
      <xs:choice>
        <xs:element name="card" type="xs:string"/>
        <xs:element name="cash" type="xs:decimal"/>
      </xs:choice>
    </xs:complexType>
  </xs:element>
</xs:schema>`)
	require.NoError(t, err)

	assert.Empty(t, schema.Validate(`<payment><card>4111</card></payment>`))
	assert.Empty(t, schema.Validate(`<payment><cash>12.50</cash></payment>`))
	assert.NotEmpty(t, schema.Validate(`<payment><cheque/></payment>`))
	assert.NotEmpty(t, schema.Validate(`<payment><cash>twelve</cash></payment>`))
}

func TestParseXSD_Errors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"not xml", `<xs:schema`},
		{"wrong root", `<root/>`},
		{"no elements", `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"/>`},
		{"unknown type", `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:element name="a" type="Missing"/></xs:schema>`},
		{"bad pattern", `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"><xs:simpleType name="t"><xs:restriction base="xs:string"><xs:pattern value="("/></xs:restriction></xs:simpleType><xs:element name="a" type="t"/></xs:schema>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseXSD(tt.source)
			assert.Error(t, err)
		})
	}
}

func TestValidator_XMLSchemaKind(t *testing.T) {
	v := NewValidator()
	require.NoError(t, v.Compile(XMLSchema, orderSchema))
	violations := v.Validate(XMLSchema, orderSchema, []byte(`<order version="1"><id>1</id><status>NEW</status></order>`))
	assert.NotEmpty(t, violations)
	assert.NotEmpty(t, v.Validate(XMLSchema, orderSchema, 42))
}
