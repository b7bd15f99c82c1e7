// Package ui provides semantic text formatting for command output.
//
// Formatters colorize when the terminal supports it and fall back to plain
// decorations when NO_COLOR is set or colors are unavailable:
//
//	ui.Code.Sprint("sealdrop relay encrypt")   // `sealdrop relay encrypt`
//	ui.Path.Sprint("output/alice/report.txt")  // output/alice/report.txt
//	ui.Highlight.Sprint("alice")               // 'alice'
//	ui.Muted.Sprint("2 recipients")            // (2 recipients)
package ui
