package kintone

import (
	"strconv"
	"strings"

	"github.com/agentstation/enrollsync/pkg/recordstore"
)

// Query renders a filter in the store's query language, ordered by record id
// so that paging past the last id seen is stable.
func Query(filter recordstore.Filter, offset, limit int) string {
	var b strings.Builder
	for i, c := range filter {
		if i > 0 {
			b.WriteString(" and ")
		}
		b.WriteString(c.Field)
		b.WriteByte(' ')
		switch c.Op {
		case recordstore.OpIn, recordstore.OpNotIn:
			b.WriteString(string(c.Op))
			b.WriteString(" (")
			for j, v := range c.Values {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(quote(v))
			}
			b.WriteByte(')')
		case recordstore.OpGt:
			b.WriteString("> ")
			if len(c.Values) > 0 {
				b.WriteString(number(c.Values[0]))
			} else {
				b.WriteString(`""`)
			}
		default:
			b.WriteString("= ")
			if len(c.Values) > 0 {
				b.WriteString(quote(c.Values[0]))
			} else {
				b.WriteString(`""`)
			}
		}
	}
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	b.WriteString("order by $id asc limit ")
	b.WriteString(strconv.Itoa(limit))
	b.WriteString(" offset ")
	b.WriteString(strconv.Itoa(offset))
	return b.String()
}

var escaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quote(v string) string {
	return `"` + escaper.Replace(v) + `"`
}

// number renders record ids and other integers bare; anything else is quoted.
func number(v string) string {
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		return v
	}
	return quote(v)
}
