package convo

import (
	"testing"

	"github.com/tinyland-inc/convosplit/pkg/platform"
)

const testGuild = "guild-1"

var (
	botP       = platform.Principal{Kind: platform.PrincipalUser, ID: "bot-1"}
	initiatorP = platform.Principal{Kind: platform.PrincipalUser, ID: "user-1"}
)

func TestBuildScope_Open(t *testing.T) {
	origin := platform.Scope{
		{Kind: platform.PrincipalRole, ID: "role-1"}: {View: platform.Allow},
	}

	scope := BuildScope(origin, testGuild, botP, initiatorP, nil)

	if got := scope[botP]; got != fullControl() {
		t.Errorf("bot overwrite = %+v, want full control", got)
	}
	if got := scope[platform.Everyone(testGuild)]; got != readSend() {
		t.Errorf("everyone overwrite = %+v, want read+send", got)
	}
	if got := scope[platform.Principal{Kind: platform.PrincipalRole, ID: "role-1"}]; got.View != platform.Allow {
		t.Errorf("origin role overwrite not preserved: %+v", got)
	}
	if got := scope[platform.Principal{Kind: platform.PrincipalRole, ID: "role-1"}]; got.Send != platform.Inherit {
		t.Errorf("open conversation must not restrict sending, got %+v", got)
	}
}

func TestBuildScope_DoesNotMutateOrigin(t *testing.T) {
	origin := platform.Scope{
		{Kind: platform.PrincipalRole, ID: "role-1"}: {View: platform.Allow},
	}

	BuildScope(origin, testGuild, botP, initiatorP,
		[]platform.Principal{{Kind: platform.PrincipalUser, ID: "user-2"}})

	if len(origin) != 1 {
		t.Fatalf("origin scope grew to %d entries", len(origin))
	}
	if origin[platform.Principal{Kind: platform.PrincipalRole, ID: "role-1"}].Send != platform.Inherit {
		t.Error("origin scope entry was mutated")
	}
}

func TestBuildScope_Restricted(t *testing.T) {
	origin := platform.Scope{
		platform.Everyone(testGuild):                 {View: platform.Allow, Send: platform.Allow},
		{Kind: platform.PrincipalUser, ID: "user-9"}: {Send: platform.Allow},
	}
	members := []platform.Principal{
		{Kind: platform.PrincipalUser, ID: "user-2"},
		{Kind: platform.PrincipalUser, ID: "user-3"},
	}

	scope := BuildScope(origin, testGuild, botP, initiatorP, members)

	if got := scope[platform.Everyone(testGuild)].Send; got != platform.Deny {
		t.Errorf("everyone send = %v, want deny", got)
	}
	if got := scope[platform.Principal{Kind: platform.PrincipalUser, ID: "user-9"}].Send; got != platform.Deny {
		t.Errorf("bystander send = %v, want deny", got)
	}
	for _, m := range members {
		if got := scope[m]; got != readSend() {
			t.Errorf("member %s overwrite = %+v, want read+send", m.ID, got)
		}
	}
	// Whoever started the conversation can always speak in it.
	if got := scope[initiatorP]; got != readSend() {
		t.Errorf("initiator overwrite = %+v, want read+send", got)
	}
	if got := scope[botP]; got != fullControl() {
		t.Errorf("bot overwrite = %+v, want full control", got)
	}
}

func TestLockedScope(t *testing.T) {
	scope := LockedScope(testGuild, botP)

	everyone := scope[platform.Everyone(testGuild)]
	if everyone.View != platform.Deny || everyone.Send != platform.Deny {
		t.Errorf("everyone overwrite = %+v, want view+send denied", everyone)
	}
	if got := scope[botP]; got != fullControl() {
		t.Errorf("bot overwrite = %+v, want full control", got)
	}
	if len(scope) != 2 {
		t.Errorf("locked scope has %d entries, want 2", len(scope))
	}
}
