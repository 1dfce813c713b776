package cors

import (
	"fmt"
	"io"
)

const warningTemplate = `[CORS]: The origin %[1]s does not support Cross-Origin Resource Sharing.
        Requests to this origin are being proxied, which may reduce performance.

        Please ask the maintainers of %[1]s to enable CORS using the
        Access-Control-Allow-Origin header.

        Please see https://developer.mozilla.org/en-US/docs/Web/HTTP/CORS for
        more information about Cross-Origin Resource Sharing.
`

// writeWarning writes the human-readable notice for a newly proxied origin.
// Write errors are ignored; the notice is informative only.
func writeWarning(w io.Writer, origin string) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, warningTemplate, origin)
}
