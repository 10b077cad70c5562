package api

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/extension/security"
)

type taskProviderEntry struct {
	id       string
	owner    string
	taskType string
	provider TaskProvider
}

type tasksAPI struct{ h *Host }

func (t tasksAPI) RegisterTaskProvider(ctx context.Context, taskType string, p TaskProvider) (disposable.Disposable, error) {
	owner, err := t.h.acquire(ctx, security.GroupTasks, "tasks.registerTaskProvider")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(taskType) == "" {
		return nil, invalid("empty task type")
	}
	if p == nil {
		return nil, invalid("nil task provider")
	}

	entry := &taskProviderEntry{id: uuid.NewString(), owner: owner, taskType: taskType, provider: p}
	t.h.mu.Lock()
	t.h.taskProviders = append(t.h.taskProviders, entry)
	t.h.mu.Unlock()

	return t.h.retain(owner, disposable.FuncNoErr(func() {
		t.h.mu.Lock()
		t.h.taskProviders = slices.DeleteFunc(t.h.taskProviders, func(e *taskProviderEntry) bool {
			return e.id == entry.id
		})
		t.h.mu.Unlock()
	}))
}

func (t tasksAPI) FetchTasks(ctx context.Context, taskType string) ([]Task, error) {
	if _, err := t.h.acquire(ctx, security.GroupTasks, "tasks.fetchTasks"); err != nil {
		return nil, err
	}

	t.h.mu.RLock()
	providers := slices.Clone(t.h.taskProviders)
	t.h.mu.RUnlock()

	var (
		tasks []Task
		errs  []error
	)
	for _, e := range providers {
		if taskType != "" && e.taskType != taskType {
			continue
		}
		got, err := callProvider(func() ([]Task, error) { return e.provider.ProvideTasks(WithOwner(ctx, e.owner)) })
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, task := range got {
			if task.Type == "" {
				task.Type = e.taskType
			}
			task.Args = slices.Clone(task.Args)
			tasks = append(tasks, task)
		}
	}
	return tasks, errors.Join(errs...)
}

func (t tasksAPI) ExecuteTask(ctx context.Context, task Task) (*TaskExecution, error) {
	owner, err := t.h.acquire(ctx, security.GroupTasks, "tasks.executeTask")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(task.Name) == "" {
		return nil, invalid("task has no name")
	}

	exec := NewTaskExecution(owner, task, t.h)
	if err := t.h.track(owner, exec, exec.close); err != nil {
		return nil, err
	}
	t.h.Notify(TopicTaskStarted, owner, TaskEvent{ExecutionID: exec.ID(), Task: exec.Task()})
	return exec, nil
}

var _ Tasks = tasksAPI{}
