package discord

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/chattts/internal/discord/mock"
)

func commandInteraction(name string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			Type:    discordgo.InteractionApplicationCommand,
			GuildID: "g1",
			Data:    discordgo.ApplicationCommandInteractionData{Name: name},
		},
	}
}

func TestCommandRouter_ApplicationCommandsSorted(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter(nil)
	noop := func(context.Context, Responder, *discordgo.InteractionCreate) {}
	for _, name := range []string{"setup", "gcpitch", "gcvoice", "setup"} {
		r.RegisterCommand(&discordgo.ApplicationCommand{Name: name}, noop)
	}

	cmds := r.ApplicationCommands()
	want := []string{"gcpitch", "gcvoice", "setup"}
	if len(cmds) != len(want) {
		t.Fatalf("len(ApplicationCommands()) = %d, want %d", len(cmds), len(want))
	}
	for i, c := range cmds {
		if c.Name != want[i] {
			t.Errorf("cmds[%d] = %q, want %q", i, c.Name, want[i])
		}
	}
}

func TestCommandRouter_HandleDispatchesByName(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter(nil)
	var called []string
	for _, name := range []string{"setup", "gcspeed"} {
		r.RegisterCommand(&discordgo.ApplicationCommand{Name: name}, func(_ context.Context, resp Responder, i *discordgo.InteractionCreate) {
			called = append(called, name)
			Respond(resp, i, name)
		})
	}

	resp := &mock.InteractionResponder{}
	r.Handle(context.Background(), resp, commandInteraction("gcspeed"))

	if len(called) != 1 || called[0] != "gcspeed" {
		t.Fatalf("called = %v, want [gcspeed]", called)
	}
	if got := resp.LastContent(); got != "gcspeed" {
		t.Errorf("content = %q, want %q", got, "gcspeed")
	}
}

func TestCommandRouter_UnknownCommand(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter(nil)
	resp := &mock.InteractionResponder{}
	r.Handle(context.Background(), resp, commandInteraction("nope"))

	last := resp.LastResponse()
	if last == nil || last.Data == nil {
		t.Fatal("no response recorded")
	}
	if last.Data.Flags&discordgo.MessageFlagsEphemeral == 0 {
		t.Error("unknown command reply is not ephemeral")
	}
}

func TestCommandRouter_IgnoresOtherInteractionTypes(t *testing.T) {
	t.Parallel()

	r := NewCommandRouter(nil)
	resp := &mock.InteractionResponder{}
	r.Handle(context.Background(), resp, &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{Type: discordgo.InteractionMessageComponent},
	})
	if n := len(resp.Responses()); n != 0 {
		t.Errorf("responses = %d, want 0", n)
	}
}
