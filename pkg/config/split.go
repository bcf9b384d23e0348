package config

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode"
)

// Like strings.Fields but ignores spaces inside areas surrounded
// by the specified quote character.
// To specify a single quote use backslash to escape it: '\''
func SplitQuotedFields(in string, quote rune) []string {
	return splitQuoted(in, quote, unicode.IsSpace)
}

// SplitSearchPath splits a list of directories separated by colons,
// semicolons or spaces. Directories containing separators can be
// enclosed in double quotes.
func SplitSearchPath(in string) []string {
	return splitQuoted(in, '"', func(ch rune) bool {
		return ch == ':' || ch == ';' || unicode.IsSpace(ch)
	})
}

func splitQuoted(in string, quote rune, isSep func(rune) bool) []string {
	type stateEnum int
	const (
		inSpace stateEnum = iota
		inField
		inQuote
		inQuoteEscaped
	)
	state := inSpace
	r := []string{}
	var buf bytes.Buffer
	quoted := false

	flush := func() {
		if buf.Len() != 0 || quoted {
			r = append(r, buf.String())
		}
		buf.Reset()
		quoted = false
	}

	for _, ch := range in {
		switch state {
		case inSpace:
			if ch == quote {
				state = inQuote
				quoted = true
			} else if !isSep(ch) {
				buf.WriteRune(ch)
				state = inField
			}

		case inField:
			if ch == quote {
				state = inQuote
				quoted = true
			} else if isSep(ch) {
				flush()
				state = inSpace
			} else {
				buf.WriteRune(ch)
			}

		case inQuote:
			if ch == quote {
				state = inField
			} else if ch == '\\' {
				state = inQuoteEscaped
			} else {
				buf.WriteRune(ch)
			}

		case inQuoteEscaped:
			buf.WriteRune(ch)
			state = inQuote
		}
	}

	flush()

	return r
}

// Split2PartsBySpace splits a string into 2 parts at the first space.
func Split2PartsBySpace(s string) []string {
	v := strings.SplitN(s, " ", 2)
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	return v
}

type configureIterator struct {
	cfgValue reflect.Value
	cfgType  reflect.Type
	i        int
	cfgTag   string
}

func iterateConfiguration(conf interface{}, tag string) *configureIterator {
	cfgValue := reflect.ValueOf(conf).Elem()
	cfgType := cfgValue.Type()

	return &configureIterator{cfgValue, cfgType, -1, tag}
}

func (it *configureIterator) Next() bool {
	it.i++
	return it.i < it.cfgValue.NumField()
}

func (it *configureIterator) Field() (name string, field reflect.Value) {
	name = it.cfgType.Field(it.i).Tag.Get(it.cfgTag)
	if comma := strings.Index(name, ","); comma >= 0 {
		name = name[:comma]
	}
	field = it.cfgValue.Field(it.i)
	return
}

// ConfigureFindFieldByName returns the field of the struct pointed to by
// conf whose tag is name.
func ConfigureFindFieldByName(conf interface{}, name, tag string) reflect.Value {
	it := iterateConfiguration(conf, tag)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == name {
			return field
		}
	}
	return reflect.ValueOf(nil)
}

func writeField(w io.Writer, fieldName string, field reflect.Value) {
	if field.Kind() == reflect.Ptr {
		if !field.IsNil() {
			fmt.Fprintf(w, "%s\t%v\n", fieldName, field.Elem())
		} else {
			fmt.Fprintf(w, "%s\t<not defined>\n", fieldName)
		}
	} else {
		fmt.Fprintf(w, "%s\t%v\n", fieldName, field)
	}
}

// ConfigureList writes every tagged field of the struct pointed to by conf.
func ConfigureList(out io.Writer, conf interface{}, tag string) {
	w := new(tabwriter.Writer)
	w.Init(out, 0, 8, 1, ' ', 0)

	it := iterateConfiguration(conf, tag)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == "" {
			continue
		}
		writeField(w, fieldName, field)
	}
	w.Flush()
}

// ConfigureListByName returns the value of the field tagged cfgname.
func ConfigureListByName(conf interface{}, cfgname, tag string) string {
	if cfgname == "" {
		return ""
	}
	it := iterateConfiguration(conf, tag)
	var buf bytes.Buffer
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == cfgname {
			writeField(&buf, fieldName, field)
			break
		}
	}
	return buf.String()
}

// ConfigureSetSimple parses rest and stores it into field. Numbers,
// booleans, strings and lists of directories are supported.
func ConfigureSetSimple(rest string, cfgname string, field reflect.Value) error {
	simpleArg := func(typ reflect.Type) (reflect.Value, error) {
		switch typ.Kind() {
		case reflect.Int:
			n, err := strconv.Atoi(rest)
			if err != nil {
				return reflect.ValueOf(nil), fmt.Errorf("argument to %q must be a number", cfgname)
			}
			if n < 0 {
				return reflect.ValueOf(nil), fmt.Errorf("argument to %q must be a number greater than zero", cfgname)
			}
			return reflect.ValueOf(&n), nil
		case reflect.Bool:
			if rest != "true" && rest != "false" {
				return reflect.ValueOf(nil), fmt.Errorf("argument to %q must be true or false", cfgname)
			}
			v := rest == "true"
			return reflect.ValueOf(&v), nil
		case reflect.String:
			v := rest
			if s := SplitQuotedFields(rest, '"'); len(s) == 1 {
				v = s[0]
			}
			return reflect.ValueOf(&v), nil
		case reflect.Slice:
			if typ.Elem().Kind() != reflect.String {
				break
			}
			v := SplitSearchPath(rest)
			return reflect.ValueOf(&v), nil
		}
		return reflect.ValueOf(nil), fmt.Errorf("unsupported type for configuration key %q", cfgname)
	}

	if field.Kind() == reflect.Ptr {
		val, err := simpleArg(field.Type().Elem())
		if err != nil {
			return err
		}
		field.Set(val)
	} else {
		val, err := simpleArg(field.Type())
		if err != nil {
			return err
		}
		field.Set(val.Elem())
	}
	return nil
}
