package conduit

import (
	"context"
	"fmt"

	"github.com/nevindra/conduit/internal/durable"
)

// subAgentContextTemplate frames a delegated task for the child run, per
// §4.9: the sub-agent sees no parent history, only this framing plus its
// task description.
const subAgentContextTemplate = `## Sub-Agent Context

You are a sub-agent spawned to complete one self-contained task. You do not
share the parent conversation's history — you are starting fresh. Work the
task to completion using the tools available to you, then reply with a
concise summary of what you did — that summary is the only thing the
parent sees.

## Your Task
%s`

// SubAgentSpawner builds an isolated child AgentLoop per invocation and
// implements the Spawner type the parent loop calls for delegate_task.
type SubAgentSpawner struct {
	gateway      *Gateway
	tools        *ToolRegistry // SUB_AGENT_TOOLS: excludes delegate_task
	assembler    *ContextAssembler
	compactor    *Compactor
	pruner       *Pruner
	durableStore *durable.Store
	tracer        Tracer
	maxIterations int
}

// NewSubAgentSpawner creates a spawner sharing the parent's gateway, memory,
// and durable store, but a distinct tool registry that omits delegate_task.
func NewSubAgentSpawner(gateway *Gateway, subAgentTools *ToolRegistry, assembler *ContextAssembler, compactor *Compactor, pruner *Pruner, durableStore *durable.Store, tracer Tracer, maxIterations int) *SubAgentSpawner {
	return &SubAgentSpawner{
		gateway:       gateway,
		tools:         subAgentTools,
		assembler:     assembler,
		compactor:     compactor,
		pruner:        pruner,
		durableStore:  durableStore,
		tracer:        tracer,
		maxIterations: maxIterations,
	}
}

// Spawn satisfies Spawner: it invokes the agent loop as a child function of
// the current run, per §4.9. The child's runID is derived from its own
// subSessionKey so its substeps never collide with the parent's.
func (s *SubAgentSpawner) Spawn(ctx context.Context, task string, subSessionKey SessionKey) (RunResult, error) {
	child := NewAgentLoop(s.gateway, s.tools, s.assembler, s.compactor, s.pruner, s.durableStore, nil,
		LoopMaxIterations(s.maxIterations), LoopAsSubAgent(), LoopTracer(s.tracer))

	incomingText := fmt.Sprintf(subAgentContextTemplate, task)
	runID := "subrun-" + string(subSessionKey)
	return child.Run(ctx, runID, subSessionKey, incomingText)
}
