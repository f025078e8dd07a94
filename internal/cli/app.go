package cli

import (
	"github.com/calvinalkan/auxin/internal/config"
	"github.com/calvinalkan/auxin/internal/lockmgr"
	"github.com/calvinalkan/auxin/internal/queue"
	"github.com/calvinalkan/auxin/internal/repo"
	"github.com/calvinalkan/auxin/internal/wal"
)

// App bundles the facade and its collaborators that individual command
// constructors need direct access to (for operations the facade doesn't
// expose verbatim, e.g. lock renew/break/status or WAL/queue introspection).
type App struct {
	Facade  *repo.Facade
	Locks   *lockmgr.Manager
	WAL     *wal.Log
	Queue   *queue.Queue
	Config  config.Config
	Sources config.Sources
}
