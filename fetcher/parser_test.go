package fetcher

import (
	"bytes"
	"reflect"
	"testing"
)

func TestGoqueryParserParseLinks(t *testing.T) {
	parser := NewGoqueryParser()
	content := bytes.NewBufferString(
		`<head>
			<link rel="canonical" href="/sample-page/" />
		 </head>
		 <body>
			<a href="/foo/bar"><img src="/baz.png"></a>
			<a href="//other-host/protocol-relative">nope</a>
			<a href="https://example.com/absolute">nope</a>
			<a href="relative/without-slash">nope</a>
			<a href="/foo/bar">dup</a>
		</body>`,
	)
	links, err := parser.ParseLinks(content)
	if err != nil {
		t.Fatalf("ParseLinks failed: %v", err)
	}
	expected := []string{"/foo/bar"}
	if !reflect.DeepEqual(links, expected) {
		t.Errorf("ParseLinks: expected %v got %v", expected, links)
	}
}

func TestExtractText(t *testing.T) {
	html := `<head><style>.a{color:red}</style></head>
		<body><script>var x = 1;</script><p>Hello   world</p><p>Again</p></body>`
	text := ExtractText(html)
	if text != "Hello world Again" {
		t.Errorf("ExtractText: got %q", text)
	}
}

func TestExtractTitle(t *testing.T) {
	html := `<head><title>  My Page  </title></head><body></body>`
	title := ExtractTitle(html)
	if title != "My Page" {
		t.Errorf("ExtractTitle: got %q", title)
	}
}
