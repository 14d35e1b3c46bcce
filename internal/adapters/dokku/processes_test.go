package dokku

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse-rollout/internal/core/ports"
)

const psReport = `=====> orders-api ps information
       Deployed:                      true
       Processes:                     2
       Ps restart policy:             on-failure:10
       Running:                       mixed
       Status web 1:                  running (CID: 03ea8977f37)
       Status worker 1:               exited (CID: 8a3b2c1d0e9)
`

func TestRunningContainersFromProcessReport(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{"ps:report": psReport}}
	a := NewAdapter(r, "ssh", []string{"dokku@paas.example.com"})

	running, err := a.RunningContainers(context.Background(), "orders-api")
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "orders-api.web.1", running[0].Name)
	assert.Equal(t, "03ea8977f37", running[0].ID)
	assert.Equal(t, []string{"ssh dokku@paas.example.com ps:report orders-api"}, r.calls)

	all, err := a.ListContainers(context.Background(), "orders-api")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "exited", all[1].State)
}

func TestRunningContainersNotDeployed(t *testing.T) {
	r := &scriptedRunner{outputs: map[string]string{"ps:report": "=====> orders-api ps information\n       Deployed:    false\n"}}

	running, err := NewAdapter(r, "", nil).RunningContainers(context.Background(), "orders-api")
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestProcessReportFailure(t *testing.T) {
	r := &scriptedRunner{
		outputs: map[string]string{"ps:report": " !     App orders-api does not exist"},
		exits:   map[string]int{"ps:report": 1},
	}

	_, err := NewAdapter(r, "", nil).ListContainers(context.Background(), "orders-api")
	var cmdErr *ports.CommandError
	assert.ErrorAs(t, err, &cmdErr)
}

func TestPruneRunsCleanup(t *testing.T) {
	r := &scriptedRunner{}

	report, err := NewAdapter(r, "", nil).Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.SpaceReclaimed)
	assert.Equal(t, []string{"dokku cleanup"}, r.calls)
}
