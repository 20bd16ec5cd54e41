package expectation

// KeyModifier edits a multi-valued field. Remove runs first, then Replace
// (only names already present), then Add (always appended).
type KeyModifier struct {
	Add     Multimap `json:"add,omitempty"`
	Replace Multimap `json:"replace,omitempty"`
	Remove  []string `json:"remove,omitempty"`
}

// PathModifier rewrites the path with a regular expression substitution.
// Substitution uses $1-style group references.
type PathModifier struct {
	Regex        string `json:"regex"`
	Substitution string `json:"substitution"`
}

// RequestModifier edits a request before it is forwarded.
type RequestModifier struct {
	Path                  *PathModifier `json:"path,omitempty"`
	QueryStringParameters *KeyModifier  `json:"queryStringParameters,omitempty"`
	Headers               *KeyModifier  `json:"headers,omitempty"`
	Cookies               *KeyModifier  `json:"cookies,omitempty"`
}

// ResponseModifier edits a response returned by an upstream.
type ResponseModifier struct {
	Headers *KeyModifier `json:"headers,omitempty"`
	Cookies *KeyModifier `json:"cookies,omitempty"`
}
