package services

import (
	"log"
	"strings"

	"freshness-emailer/config"
)

// Closure is the fixed signature appended to every message.
const Closure = "\nBest wishes,\nHDX Team"

const htmlFooter = `
      <br/><br/>
      <small>
        <p>
          <a href="http://data.humdata.org ">Humanitarian Data Exchange</a>
        </p>
        <p>
          <a href="http://humdata.us14.list-manage.com/subscribe?u=ea3f905d50ea939780139789d&id=d996922315 ">            Sign up for our newsletter</a> |             <a href=" https://twitter.com/humdata ">Follow us on Twitter</a>             | <a href="mailto:hdx@un.org ">Contact us</a>
        </p>
      </small>
    </span>
  </body>
</html>
`

// Email builds parallel plain/HTML messages with the standard framing and
// dispatches them through the configured mailer.
type Email struct {
	mailer config.Mailer
}

func NewEmail(mailer config.Mailer) *Email {
	return &Email{mailer: mailer}
}

// ConvertNewlines rewrites newlines as HTML line breaks.
func ConvertNewlines(msg string) string {
	return strings.ReplaceAll(msg, "\n", "<br>")
}

// HTMLStart opens the HTML variant of a message.
func HTMLStart(msg string) string {
	return "<html>\n  <head></head>\n  <body>\n    <span>" + msg
}

func htmlEnd(msg string) string {
	return msg + htmlFooter
}

// MsgClose joins accumulated fragments and appends the closing signature
// and, for HTML, the branding footer.
func MsgClose(msg, htmlMsg []string, endMsg string) (string, string) {
	output := strings.Join(msg, "") + endMsg + Closure
	htmlOutput := htmlEnd(strings.Join(htmlMsg, "") + ConvertNewlines(endMsg) + ConvertNewlines(Closure))
	return output, htmlOutput
}

// OutputNewline appends a line break to both variants.
func OutputNewline(msg, htmlMsg *[]string) {
	*msg = append(*msg, "\n")
	*htmlMsg = append(*htmlMsg, "<br>")
}

// Htmlify wraps a plain message into the standard framed pair.
func Htmlify(msg string) (string, string) {
	return MsgClose([]string{msg}, []string{HTMLStart(ConvertNewlines(msg))}, "")
}

func (e *Email) send(to []string, subject, output, htmlOutput string, cc []string) error {
	if err := e.mailer.Send(to, subject, output, htmlOutput, cc); err != nil {
		return err
	}
	log.Print(output)
	return nil
}

// HtmlifySend frames a plain message and sends it.
func (e *Email) HtmlifySend(to []string, subject, msg string) error {
	output, htmlOutput := Htmlify(msg)
	return e.send(to, subject, output, htmlOutput, nil)
}

// CloseSend closes accumulated fragments with the standard framing and
// sends them.
func (e *Email) CloseSend(to []string, subject string, msg, htmlMsg []string, endMsg string, cc []string) error {
	output, htmlOutput := MsgClose(msg, htmlMsg, endMsg)
	return e.send(to, subject, output, htmlOutput, cc)
}

// Digest accumulates every per-recipient message of a fan-out check so one
// combined copy can go to a supervisory list. It is send-side only; the
// individual messages are still delivered.
type Digest struct {
	plain []string
	html  []string
}

func (d *Digest) Add(plain, html string) {
	d.plain = append(d.plain, plain)
	d.html = append(d.html, html)
}

func (d *Digest) Empty() bool {
	return len(d.plain) == 0
}

// SendDigest delivers the combined copy to the supervisory list.
func (e *Email) SendDigest(to []string, subject string, digest *Digest) error {
	if len(to) == 0 || digest == nil || digest.Empty() {
		return nil
	}
	htmlMsg := []string{HTMLStart("")}
	htmlMsg = append(htmlMsg, digest.html...)
	return e.CloseSend(to, subject, digest.plain, htmlMsg, "", nil)
}
