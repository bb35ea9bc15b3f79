// Package iterator provides the ITERATOR node executor: it resolves a
// list-producing expression against the context and dispatches a nested
// node once per item on a bounded sub-pool. Item failures are accumulated,
// never propagated to sibling items.
package iterator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
	"golang.org/x/sync/semaphore"
)

const (
	defaultConcurrency     = 10
	maxConcurrency         = 50
	defaultMaxErrorSamples = 10
)

// BodyDispatcher creates the executor for the nested per-item node. The
// engine registry satisfies this.
type BodyDispatcher interface {
	CreateExecutor(ctx context.Context, node *models.WorkflowNode, workflow *models.Workflow) (protocol.NodeExecutor, error)
}

type Executor struct {
	nodeID          string
	source          string
	itemAs          string
	concurrency     int64
	maxErrorSamples int

	body       *models.WorkflowNode
	workflow   *models.Workflow
	dispatcher BodyDispatcher
}

// NewExecutor builds an iterator executor from node config.
func NewExecutor(node *models.WorkflowNode, workflow *models.Workflow, dispatcher BodyDispatcher) (*Executor, error) {
	source, ok := node.Config["source"].(string)
	if !ok || source == "" {
		return nil, errors.New("missing required field 'source'")
	}

	bodyConfig, ok := node.Config["body"].(map[string]any)
	if !ok {
		return nil, errors.New("missing required field 'body'")
	}

	bodyKind, ok := bodyConfig["kind"].(string)
	if !ok || bodyKind == "" {
		return nil, errors.New("iterator body missing 'kind'")
	}

	bodyNodeConfig, _ := bodyConfig["config"].(map[string]any)

	itemAs, _ := node.Config["item_as"].(string)
	if itemAs == "" {
		itemAs = "item"
	}

	concurrency := int64(defaultConcurrency)
	if raw, ok := node.Config["concurrency"].(float64); ok && raw > 0 {
		concurrency = int64(raw)
	}

	if concurrency > maxConcurrency {
		concurrency = maxConcurrency
	}

	maxErrorSamples := defaultMaxErrorSamples
	if raw, ok := node.Config["max_error_samples"].(float64); ok && raw >= 0 {
		maxErrorSamples = int(raw)
	}

	body := &models.WorkflowNode{
		ID:      node.ID + ".body",
		Kind:    models.NodeKind(bodyKind),
		Name:    node.Name + " body",
		Config:  bodyNodeConfig,
		Enabled: true,
	}

	return &Executor{
		nodeID:          node.ID,
		source:          source,
		itemAs:          itemAs,
		concurrency:     concurrency,
		maxErrorSamples: maxErrorSamples,
		body:            body,
		workflow:        workflow,
		dispatcher:      dispatcher,
	}, nil
}

func (e *Executor) Execute(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) (*models.NodeResult, error) {
	logger = logger.With("module", "iterator_executor", "source", e.source)

	items, err := e.resolveItems(execCtx)
	if err != nil {
		return &models.NodeResult{
			Status:       models.ExecutionLogStatusFailed,
			ErrorMessage: err.Error(),
		}, nil
	}

	stats := e.fanOut(ctx, execCtx, items, logger)

	logger.InfoContext(ctx, "Iterator completed",
		"attempted", stats.Attempted,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)

	return &models.NodeResult{
		Status: stats.Status(),
		Items:  stats,
		Output: map[string]any{
			"attempted": stats.Attempted,
			"succeeded": stats.Succeeded,
			"failed":    stats.Failed,
		},
	}, nil
}

func (e *Executor) resolveItems(execCtx *models.ExecutionContext) ([]any, error) {
	value, ok := execCtx.Lookup(e.source)
	if !ok {
		return nil, fmt.Errorf("iterator source %q not found in context", e.source)
	}

	switch v := value.(type) {
	case []any:
		return v, nil
	case []map[string]any:
		items := make([]any, 0, len(v))
		for _, item := range v {
			items = append(items, item)
		}

		return items, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("iterator source %q is not a list", e.source)
	}
}

// fanOut runs the body once per item on a bounded pool. Results land in an
// accumulator guarded by its own mutex; items never mutate shared execution
// state directly.
func (e *Executor) fanOut(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	items []any,
	logger *slog.Logger,
) *models.ItemStats {
	stats := &models.ItemStats{}
	if len(items) == 0 {
		return stats
	}

	stats.Attempted = len(items)

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(e.concurrency)
	)

	for index, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled mid fan-out: remaining items count as failed.
			mu.Lock()
			stats.Failed++
			e.sampleError(stats, index, err)
			mu.Unlock()

			continue
		}

		wg.Add(1)

		go func(index int, item any) {
			defer wg.Done()
			defer sem.Release(1)

			err := e.runItem(ctx, execCtx, index, item, logger)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				stats.Failed++
				e.sampleError(stats, index, err)

				return
			}

			stats.Succeeded++
		}(index, item)
	}

	wg.Wait()

	return stats
}

func (e *Executor) runItem(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	index int,
	item any,
	logger *slog.Logger,
) error {
	itemCtx := execCtx.Child(e.itemAs, item)
	itemLogger := logger.With("item_index", index)

	executor, err := e.dispatcher.CreateExecutor(ctx, e.body, e.workflow)
	if err != nil {
		return err
	}

	result, err := executor.Execute(ctx, itemCtx, itemLogger)
	if err != nil {
		return err
	}

	if result.Status == models.ExecutionLogStatusFailed {
		return errors.New(result.ErrorMessage)
	}

	return nil
}

func (e *Executor) sampleError(stats *models.ItemStats, index int, err error) {
	if len(stats.SampleErrors) >= e.maxErrorSamples {
		return
	}

	stats.SampleErrors = append(stats.SampleErrors, fmt.Sprintf("item %d: %v", index, err))
}
