package router

import (
	"html"
	"strings"
)

// helpText renders Telegram-friendly help in HTML parse mode.
// With no argument it lists every command; with one it shows the detail view.
func (m *CommandManager) helpText(args []string) string {
	if len(args) == 0 {
		return m.helpTopHTML()
	}

	word := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(args[0]), "/"))
	cmd, ok := m.lookup(word)
	if !ok {
		return strings.Join([]string{
			"❓ <b>Unknown command</b>",
			"Type <code>/help</code> to see the command list.",
		}, "\n")
	}
	return m.helpCommandHTML(cmd)
}

func (m *CommandManager) helpTopHTML() string {
	names := m.commandNames()
	owners := m.ownersSnapshot()

	lines := []string{
		"📚 <b>Commands</b>",
		"Type <code>/help &lt;command&gt;</code> for details.",
		"",
	}
	for _, name := range names {
		cmd, ok := m.lookup(name)
		if !ok {
			continue
		}
		prefix := "• "
		if cmd.Access == AccessOwnerOnly && len(owners) > 0 {
			prefix = "• 🔒 "
		}
		suffix := ""
		if d := strings.TrimSpace(cmd.Description); d != "" {
			suffix = " — " + html.EscapeString(d)
		}
		lines = append(lines, prefix+"<code>/"+html.EscapeString(name)+"</code>"+suffix)
	}
	return strings.Join(lines, "\n")
}

func (m *CommandManager) helpCommandHTML(c *Command) string {
	lines := []string{"📚 <b>Help</b> <code>/" + html.EscapeString(c.Name) + "</code>"}
	if d := strings.TrimSpace(c.Description); d != "" {
		lines = append(lines, html.EscapeString(d))
	}
	if c.Access == AccessOwnerOnly && len(m.ownersSnapshot()) > 0 {
		lines = append(lines, "🔒 <i>Owner only</i>")
	}
	if u := strings.TrimSpace(c.Usage); u != "" {
		lines = append(lines, "", "<b>Usage</b>", "<code>"+html.EscapeString(u)+"</code>")
	}
	if len(c.Aliases) > 0 {
		lines = append(lines, "", "<b>Aliases</b>")
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" {
				lines = append(lines, "• <code>/"+html.EscapeString(a)+"</code>")
			}
		}
	}
	return strings.Join(lines, "\n")
}
