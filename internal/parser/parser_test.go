package parser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func symbolNames(syms []Symbol) []string {
	names := make([]string, len(syms))
	for i, s := range syms {
		names[i] = s.Name
	}
	return names
}

func TestSupportedRecognizesTheFiveLanguageTags(t *testing.T) {
	require.True(t, Supported("go"))
	require.True(t, Supported("python"))
	require.True(t, Supported("javascript"))
	require.True(t, Supported("typescript"))
	require.True(t, Supported("rust"))
	require.False(t, Supported("ruby"))
}

func TestParseGoExtractsFunctionsAndCallReferences(t *testing.T) {
	p := New()
	defer p.Close()

	src := `package sample

func Bar() int {
	return 1
}

func Foo() int {
	return Bar()
}
`
	res, err := p.Parse(context.Background(), "sample.go", LangGo, []byte(src))
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"Bar", "Foo"}, symbolNames(res.Symbols))

	var calls []string
	for _, ref := range res.References {
		if ref.Kind == RefCalls {
			calls = append(calls, ref.Target)
		}
	}
	require.Contains(t, calls, "Bar")
}

func TestParseGoMethodGetsReceiverScopedIDAndImplementsRef(t *testing.T) {
	p := New()
	defer p.Close()

	src := `package sample

type Client struct{}

func (c *Client) Do() error {
	return nil
}
`
	res, err := p.Parse(context.Background(), "sample.go", LangGo, []byte(src))
	require.NoError(t, err)

	var method *Symbol
	for i := range res.Symbols {
		if res.Symbols[i].Name == "Do" {
			method = &res.Symbols[i]
		}
	}
	require.NotNil(t, method)
	require.Equal(t, KindMethod, method.Kind)
	require.Contains(t, method.ID, "Client::Do")

	var implementsClient bool
	for _, ref := range res.References {
		if ref.Kind == RefImplements && ref.Target == "Client" {
			implementsClient = true
		}
	}
	require.True(t, implementsClient)
}

func TestParsePythonExtractsClassAndNestedMethod(t *testing.T) {
	p := New()
	defer p.Close()

	src := `class Greeter:
    def hello(self):
        return self.name
`
	res, err := p.Parse(context.Background(), "sample.py", LangPython, []byte(src))
	require.NoError(t, err)
	require.Contains(t, symbolNames(res.Symbols), "Greeter")
	require.Contains(t, symbolNames(res.Symbols), "hello")
}

func TestParseRustExtractsStructAndImplMethod(t *testing.T) {
	p := New()
	defer p.Close()

	src := `struct Counter {
    value: i32,
}

impl Counter {
    fn increment(&mut self) {
        self.value += 1;
    }
}
`
	res, err := p.Parse(context.Background(), "sample.rs", LangRust, []byte(src))
	require.NoError(t, err)
	require.Contains(t, symbolNames(res.Symbols), "Counter")
	require.Contains(t, symbolNames(res.Symbols), "increment")
}

func TestParseTypeScriptExtractsInterfaceAndFunction(t *testing.T) {
	p := New()
	defer p.Close()

	src := `interface Shape {
    area(): number;
}

function describe(s: Shape): string {
    return "shape";
}
`
	res, err := p.Parse(context.Background(), "sample.ts", LangTypeScript, []byte(src))
	require.NoError(t, err)
	require.Contains(t, symbolNames(res.Symbols), "Shape")
	require.Contains(t, symbolNames(res.Symbols), "describe")
}

func TestParseReturnsEmptyResultForBlankSource(t *testing.T) {
	p := New()
	defer p.Close()

	res, err := p.Parse(context.Background(), "empty.go", LangGo, []byte("package sample\n"))
	require.NoError(t, err)
	require.Empty(t, res.Symbols)
	require.Empty(t, res.References)
}
