package output

import "bytes"

// nameFormatter writes Result.Names, each followed by sep. The "null"
// variant pairs with xargs -0.
type nameFormatter struct{ sep byte }

func (f nameFormatter) Format(w *bytes.Buffer, r *Result) error {
	for _, name := range r.Names() {
		w.WriteString(name)
		w.WriteByte(f.sep)
	}
	return nil
}

func init() {
	Register("paths", func() Formatter { return nameFormatter{sep: '\n'} })
	Register("null", func() Formatter { return nameFormatter{sep: 0} })
}
