package control_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/edacc-worker/internal/control"
	"github.com/fairyhunter13/edacc-worker/internal/domain"
)

func TestParseCommands_Kill(t *testing.T) {
	t.Parallel()
	cmds := control.ParseCommands("kill 42")
	assert.Equal(t, []domain.Command{{Kind: domain.CommandKillJob, JobID: 42}}, cmds)
}

func TestParseCommands_KillClientSoftAndHard(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []domain.Command{{Kind: domain.CommandKillClientSoft}}, control.ParseCommands("kill_client soft"))
	assert.Equal(t, []domain.Command{{Kind: domain.CommandKillClientHard}}, control.ParseCommands("kill_client hard"))
}

func TestParseCommands_WaitTime(t *testing.T) {
	t.Parallel()
	cmds := control.ParseCommands("wait_time 120")
	assert.Equal(t, []domain.Command{{Kind: domain.CommandWaitTime, WaitTime: 120}}, cmds)
}

func TestParseCommands_MultipleLines(t *testing.T) {
	t.Parallel()
	cmds := control.ParseCommands("kill 1\nwait_time 5\nkill 2")
	assert.Equal(t, []domain.Command{
		{Kind: domain.CommandKillJob, JobID: 1},
		{Kind: domain.CommandWaitTime, WaitTime: 5},
		{Kind: domain.CommandKillJob, JobID: 2},
	}, cmds)
}

func TestParseCommands_UnknownVerbIsIgnored(t *testing.T) {
	t.Parallel()
	assert.Empty(t, control.ParseCommands("frobnicate 1"))
}

func TestParseCommands_MalformedArgumentsAreSkipped(t *testing.T) {
	t.Parallel()
	assert.Empty(t, control.ParseCommands("kill notanumber"))
	assert.Empty(t, control.ParseCommands("kill 0"))
	assert.Empty(t, control.ParseCommands("kill_client sideways"))
	assert.Empty(t, control.ParseCommands("wait_time"))
	assert.Empty(t, control.ParseCommands("kill"))
}

func TestParseCommands_BlankInput(t *testing.T) {
	t.Parallel()
	assert.Empty(t, control.ParseCommands(""))
	assert.Empty(t, control.ParseCommands("   \n\n  "))
}

func TestChannel_NextDrainsQueuedCommandsThenReportsEmpty(t *testing.T) {
	t.Parallel()
	m := &domain.MethodsMock{}
	ch := control.New(m, 1)

	_, ok := ch.Next()
	assert.False(t, ok, "a freshly constructed channel has nothing queued")
}
