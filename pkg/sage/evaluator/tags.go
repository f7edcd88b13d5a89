package evaluator

// htmlElements are the element names bound as bare tags. Every element is
// emitted two-sided, void elements included.
var htmlElements = []string{
	"html", "head", "title", "meta", "link", "style", "script", "body",
	"header", "footer", "main", "nav", "section", "article", "aside",
	"h1", "h2", "h3", "h4", "h5", "h6",
	"div", "span", "p", "a", "em", "strong", "small", "code", "pre", "blockquote",
	"br", "hr", "img",
	"ul", "ol", "li", "dl", "dt", "dd",
	"table", "thead", "tbody", "tfoot", "tr", "th", "td", "caption",
	"form", "fieldset", "legend", "label", "input", "textarea", "select", "option", "button",
	"time",
}

// Tags returns the HTML tag layer: one bare tag per element name.
func Tags() map[string]Value {
	layer := make(map[string]Value, len(htmlElements))
	for _, name := range htmlElements {
		layer[name] = &Tag{Name: name}
	}
	return layer
}
