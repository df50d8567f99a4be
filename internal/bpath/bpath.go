// Package bpath canonicalizes filesystem paths. The teacher repo
// reserves a bpath package (referenced from fd.Cwd_t.Canonicalpath) but
// ships no implementation; this fills that gap the way fd.go's call
// site expects: resolve "." and ".." components against an absolute
// path without touching the filesystem.
package bpath

import "rvkernel/internal/ustr"

// Canonicalize resolves "." and ".." components in an absolute path,
// returning a path with no redundant separators or dot components.
func Canonicalize(p ustr.Ustr) ustr.Ustr {
	parts := p.Split()
	stack := make([]ustr.Ustr, 0, len(parts))
	for _, part := range parts {
		switch {
		case part.Isdot():
			continue
		case part.Isdotdot():
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, part)
		}
	}
	out := ustr.MkUstrRoot()
	for i, part := range stack {
		if i == 0 {
			out = append(ustr.Ustr{'/'}, part...)
			continue
		}
		out = out.Extend(part)
	}
	return out
}
