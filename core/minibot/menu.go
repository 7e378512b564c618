package minibot

import (
	"regexp"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Callback keys of the mini-bot keyboards.
const (
	ActionChoice      = "choice"
	ActionDashboard   = "dash"
	ActionRemoveAdmin = "rmadmin"
	ActionCancel      = "cancel"
)

// Dashboard button payloads.
const (
	dashBroadcast = "broadcast"
	dashStats     = "stats"
	dashAdmins    = "admins"
	dashWelcome   = "welcome"
)

var (
	userMenu = []tele.Command{
		{Text: "start", Description: "Start the bot"},
		{Text: "help", Description: "Show help"},
		{Text: "cancel", Description: "Cancel the current action"},
	}
	adminMenu = []tele.Command{
		{Text: "dashboard", Description: "Admin dashboard"},
		{Text: "broadcast", Description: "Message every user of this bot"},
		{Text: "stats", Description: "Bot statistics"},
	}
	ownerMenu = []tele.Command{
		{Text: "admins", Description: "Manage admins"},
		{Text: "addadmin", Description: "Add an admin"},
		{Text: "removeadmin", Description: "Remove an admin"},
		{Text: "setwelcome", Description: "Change the welcome message"},
	}
)

// menuName is what Telegram accepts as a bot command.
var menuName = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// menuFor returns the command menu shown to the caller. Custom flow
// triggers are listed for everyone when they are valid command names and
// do not repeat a built-in entry.
func menuFor(req Request) []tele.Command {
	menu := append([]tele.Command(nil), userMenu...)
	if req.Admin() {
		menu = append(menu, adminMenu...)
	}
	if req.Owner() {
		menu = append(menu, ownerMenu...)
	}
	seen := make(map[string]bool, len(menu))
	for _, c := range menu {
		seen[c.Text] = true
	}
	for _, cmd := range req.Flow.Commands() {
		name, ok := strings.CutPrefix(cmd, "/")
		if !ok || !menuName.MatchString(name) || seen[name] {
			continue
		}
		seen[name] = true
		menu = append(menu, tele.Command{Text: name, Description: "Start " + name})
	}
	return menu
}
