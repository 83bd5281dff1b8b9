package htmlprocessor

// Document is a parsed HTML page that can be edited and re-serialized
type Document interface {
	// SetBaseHref makes href the document base URL. An existing <base> element
	// has its href replaced; otherwise one is inserted as the first child of <head>.
	SetBaseHref(href string)

	// BaseHref returns the href of the first <base> element, or "".
	BaseHref() string

	// HTML re-serializes the DOM.
	HTML() ([]byte, error)
}

// InjectBaseHref parses page, sets its base URL and returns the serialized result
func InjectBaseHref(page []byte, href string) ([]byte, error) {
	doc, err := ParseWithDOM(page)
	if err != nil {
		return nil, err
	}
	doc.SetBaseHref(href)
	return doc.HTML()
}
