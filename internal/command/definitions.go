// Package command implements the bot's slash commands.
package command

import "github.com/bwmarrin/discordgo"

// Base command names, before the configured prefix is applied.
const (
	AddStock       = "add-stock"
	RemoveStock    = "remove-stock"
	SetSchedule    = "set-schedule"
	RemoveSchedule = "remove-schedule"
	List           = "list"
	Quote          = "quote"
	Help           = "help"
)

// OptionKind is the value type of a command option.
type OptionKind int

const (
	StringOption OptionKind = iota
	IntegerOption
)

type Option struct {
	Name        string
	Description string
	Kind        OptionKind
	Required    bool
}

// Definition describes one command. Deferred commands may call the price
// service and are acknowledged before they run.
type Definition struct {
	Name        string
	Description string
	Options     []Option
	Deferred    bool
}

// Definitions returns every command with prefix applied to its name.
func Definitions(prefix string) []Definition {
	defs := []Definition{
		{
			Name:        AddStock,
			Description: "Add a stock to this channel's price notifications",
			Options:     []Option{{Name: "code", Description: "Stock code, e.g. 7203", Required: true}},
			Deferred:    true,
		},
		{
			Name:        RemoveStock,
			Description: "Remove a stock from this channel",
			Options:     []Option{{Name: "code", Description: "Stock code, e.g. 7203", Required: true}},
		},
		{
			Name:        SetSchedule,
			Description: "Add notification times to this channel",
			Options: []Option{
				{Name: "day", Description: "every day / weekdays / weekend / days such as Mon,Wed or 月水", Required: true},
				{Name: "time1", Description: "Notification time (HH:MM)", Required: true},
				{Name: "time2", Description: "Notification time (HH:MM)"},
				{Name: "time3", Description: "Notification time (HH:MM)"},
			},
		},
		{
			Name:        RemoveSchedule,
			Description: "Remove a schedule by ID (see list)",
			Options:     []Option{{Name: "id", Description: "Schedule ID", Kind: IntegerOption, Required: true}},
		},
		{Name: List, Description: "Show every notification setting in this server"},
		{Name: Quote, Description: "Show current prices of this channel's stocks now", Deferred: true},
		{Name: Help, Description: "Show command usage"},
	}
	for i := range defs {
		defs[i].Name = prefix + defs[i].Name
	}
	return defs
}

// DeferredNames returns the names of deferred commands.
func DeferredNames(defs []Definition) []string {
	var out []string
	for _, d := range defs {
		if d.Deferred {
			out = append(out, d.Name)
		}
	}
	return out
}

// ApplicationCommands converts defs for bulk registration.
func ApplicationCommands(defs []Definition) []*discordgo.ApplicationCommand {
	out := make([]*discordgo.ApplicationCommand, 0, len(defs))
	for _, d := range defs {
		cmd := &discordgo.ApplicationCommand{
			Name:        d.Name,
			Description: d.Description,
		}
		for _, o := range d.Options {
			typ := discordgo.ApplicationCommandOptionString
			if o.Kind == IntegerOption {
				typ = discordgo.ApplicationCommandOptionInteger
			}
			cmd.Options = append(cmd.Options, &discordgo.ApplicationCommandOption{
				Type:        typ,
				Name:        o.Name,
				Description: o.Description,
				Required:    o.Required,
			})
		}
		out = append(out, cmd)
	}
	return out
}
