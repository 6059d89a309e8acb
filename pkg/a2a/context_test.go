package a2a

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestExtensionHeader(t *testing.T) {
	Convey("Parsing is tolerant of whitespace, repeats and empty fields", t, func() {
		uris := ParseExtensionHeader([]string{
			" https://ext.example/b ,https://ext.example/a",
			"https://ext.example/a, ,",
		})

		So(uris, ShouldResemble, []string{"https://ext.example/a", "https://ext.example/b"})
	})

	Convey("Formatting renders a sorted comma-separated value", t, func() {
		value := FormatExtensionHeader(map[string]struct{}{
			"https://ext.example/b": {},
			"https://ext.example/a": {},
		})

		So(value, ShouldEqual, "https://ext.example/a, https://ext.example/b")
		So(FormatExtensionHeader(nil), ShouldBeEmpty)
	})
}

func TestServerCallContext(t *testing.T) {
	Convey("Owner falls back to unknown for anonymous callers", t, func() {
		So(NewServerCallContext(User{}).Owner(), ShouldEqual, "unknown")
		So(NewServerCallContext(User{Authenticated: true}).Owner(), ShouldEqual, "unknown")
		So(NewServerCallContext(User{Authenticated: true, Name: "alice"}).Owner(), ShouldEqual, "alice")

		var missing *ServerCallContext
		So(missing.Owner(), ShouldEqual, "unknown")
	})

	Convey("The envelope travels on a context", t, func() {
		call := NewServerCallContext(User{Authenticated: true, Name: "bob"})
		ctx := WithCallContext(context.Background(), call)

		So(CallContextFrom(ctx), ShouldEqual, call)
		So(CallContextFrom(context.Background()), ShouldBeNil)
	})

	Convey("Activated extensions accumulate as a set", t, func() {
		call := NewServerCallContext(User{})
		call.RequestExtensions([]string{"https://ext.example/a", "https://ext.example/b"})
		call.ActivateExtension("https://ext.example/a")
		call.ActivateExtension("https://ext.example/a")
		call.ActivateExtension("")

		So(call.RequestedExtensions, ShouldHaveLength, 2)
		So(call.ActivatedExtensions, ShouldHaveLength, 1)
	})
}
