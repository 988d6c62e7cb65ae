package metrics

import "expvar"

var (
	Cycles            = expvar.NewInt("pairs_cycles")
	CyclesSkipped     = expvar.NewMap("pairs_cycles_skipped") // reason -> count
	Signals           = expvar.NewInt("pairs_signals")
	Entries           = expvar.NewInt("pairs_entries")
	Exits             = expvar.NewMap("pairs_exits") // exit reason -> count
	ExecutionErrors   = expvar.NewInt("pairs_execution_errors")
	PartialExecutions = expvar.NewInt("pairs_partial_executions")
	HaltedCycles      = expvar.NewInt("pairs_halted_cycles")
	StateSaveErrors   = expvar.NewInt("pairs_state_save_errors")
	DashboardClients  = expvar.NewInt("pairs_dashboard_clients")
)
