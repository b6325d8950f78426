package graphstore

import (
	"context"
	"fmt"

	"github.com/printshop/scheduler/internal/domain"
)

// WorkflowGraphStore projects a job's stage-instance dependency chain into
// the graph so callers can ask dependency questions (what blocks this
// instance, how deep is the remaining chain, which stages converge here)
// without relational joins across the cover/text/convergence partition.
type WorkflowGraphStore struct {
	conn *ConnectionManager
}

// NewWorkflowGraphStore builds a WorkflowGraphStore over an open graph
// connection.
func NewWorkflowGraphStore(conn *ConnectionManager) *WorkflowGraphStore {
	return &WorkflowGraphStore{conn: conn}
}

// SyncWorkflow replaces the graph projection of one job's workflow with the
// current cover/text/convergence chain. Cover and text paths each form a
// PRECEDES chain; their tail instances CONVERGES_INTO the first convergence
// instance, which then PRECEDES the rest of the convergence path.
func (g *WorkflowGraphStore) SyncWorkflow(ctx context.Context, wf *domain.Workflow) error {
	jobParams := map[string]interface{}{"jobId": wf.JobID}
	if _, err := g.conn.Query(ctx,
		`MATCH (s:StageInstance {jobId: $jobId})-[r]->() DELETE r`, jobParams); err != nil {
		return fmt.Errorf("graphstore: clearing relationships for job %s: %w", wf.JobID, err)
	}
	if _, err := g.conn.Query(ctx,
		`MATCH (s:StageInstance {jobId: $jobId}) DELETE s`, jobParams); err != nil {
		return fmt.Errorf("graphstore: clearing nodes for job %s: %w", wf.JobID, err)
	}

	all := make([]*domain.StageInstance, 0, len(wf.CoverPath)+len(wf.TextPath)+len(wf.ConvergencePath))
	all = append(all, wf.CoverPath...)
	all = append(all, wf.TextPath...)
	all = append(all, wf.ConvergencePath...)

	for _, inst := range all {
		if err := g.createNode(ctx, inst); err != nil {
			return err
		}
	}

	if err := g.chainPath(ctx, wf.CoverPath); err != nil {
		return err
	}
	if err := g.chainPath(ctx, wf.TextPath); err != nil {
		return err
	}
	if err := g.chainPath(ctx, wf.ConvergencePath); err != nil {
		return err
	}

	if len(wf.ConvergencePath) > 0 {
		first := wf.ConvergencePath[0]
		if last := lastOf(wf.CoverPath); last != nil {
			if err := g.relate(ctx, last.InstanceID, first.InstanceID, "CONVERGES_INTO"); err != nil {
				return err
			}
		}
		if last := lastOf(wf.TextPath); last != nil {
			if err := g.relate(ctx, last.InstanceID, first.InstanceID, "CONVERGES_INTO"); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *WorkflowGraphStore) createNode(ctx context.Context, inst *domain.StageInstance) error {
	query := `CREATE (:StageInstance {instanceId: $instanceId, jobId: $jobId, stageId: $stageId,
		stageOrder: $stageOrder, partAssignment: $partAssignment, status: $status})`
	params := map[string]interface{}{
		"instanceId":     inst.InstanceID,
		"jobId":          inst.JobID,
		"stageId":        inst.StageID,
		"stageOrder":     inst.StageOrder,
		"partAssignment": string(inst.PartAssignment),
		"status":         string(inst.Status),
	}
	if _, err := g.conn.Query(ctx, query, params); err != nil {
		return fmt.Errorf("graphstore: creating node for instance %s: %w", inst.InstanceID, err)
	}
	return nil
}

func (g *WorkflowGraphStore) chainPath(ctx context.Context, path []*domain.StageInstance) error {
	for i := 0; i+1 < len(path); i++ {
		if err := g.relate(ctx, path[i].InstanceID, path[i+1].InstanceID, "PRECEDES"); err != nil {
			return err
		}
	}
	return nil
}

// relate creates a relType edge between two existing nodes. relType comes
// only from the two fixed internal labels above (PRECEDES,
// CONVERGES_INTO), never caller input, so it is safe to interpolate into
// the query text — Cypher has no parameter syntax for relationship types.
func (g *WorkflowGraphStore) relate(ctx context.Context, fromID, toID, relType string) error {
	query := fmt.Sprintf(
		`MATCH (a:StageInstance {instanceId: $fromId}), (b:StageInstance {instanceId: $toId}) CREATE (a)-[:%s]->(b)`,
		relType)
	params := map[string]interface{}{"fromId": fromID, "toId": toID}
	if _, err := g.conn.Query(ctx, query, params); err != nil {
		return fmt.Errorf("graphstore: relating %s -%s-> %s: %w", fromID, relType, toID, err)
	}
	return nil
}

// CanStageStart reports whether every instance that PRECEDES or
// CONVERGES_INTO the given instance has already completed. An instance
// with no predecessors can always start.
func (g *WorkflowGraphStore) CanStageStart(ctx context.Context, instanceID string) (bool, error) {
	query := `
		MATCH (p:StageInstance)-[:PRECEDES|CONVERGES_INTO]->(s:StageInstance {instanceId: $instanceId})
		WHERE p.status <> 'completed'
		RETURN COUNT(p) AS blocking`

	result, err := g.conn.Query(ctx, query, map[string]interface{}{"instanceId": instanceID})
	if err != nil {
		return false, fmt.Errorf("graphstore: checking predecessors of %s: %w", instanceID, err)
	}
	defer result.Close()

	if !result.HasNext() {
		return true, nil
	}
	record, err := result.Next()
	if err != nil {
		return false, fmt.Errorf("graphstore: reading predecessor count: %w", err)
	}
	n, ok := record[0].(int64)
	if !ok {
		return false, fmt.Errorf("graphstore: unexpected predecessor count type %T", record[0])
	}
	return n == 0, nil
}

// BlockingChainDepth returns the number of incomplete instances anywhere
// upstream of instanceID, following PRECEDES and CONVERGES_INTO edges
// transitively. Used to explain why a job's tentative due date is far out.
func (g *WorkflowGraphStore) BlockingChainDepth(ctx context.Context, instanceID string) (int, error) {
	query := `
		MATCH (p:StageInstance)-[:PRECEDES|CONVERGES_INTO*1..20]->(s:StageInstance {instanceId: $instanceId})
		WHERE p.status <> 'completed'
		RETURN COUNT(DISTINCT p) AS depth`

	result, err := g.conn.Query(ctx, query, map[string]interface{}{"instanceId": instanceID})
	if err != nil {
		return 0, fmt.Errorf("graphstore: computing blocking chain depth for %s: %w", instanceID, err)
	}
	defer result.Close()

	if !result.HasNext() {
		return 0, nil
	}
	record, err := result.Next()
	if err != nil {
		return 0, fmt.Errorf("graphstore: reading chain depth: %w", err)
	}
	n, ok := record[0].(int64)
	if !ok {
		return 0, fmt.Errorf("graphstore: unexpected chain depth type %T", record[0])
	}
	return int(n), nil
}

func lastOf(path []*domain.StageInstance) *domain.StageInstance {
	if len(path) == 0 {
		return nil
	}
	return path[len(path)-1]
}
