package workerpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Task representa uma tarefa a ser executada
type Task struct {
	ID      string
	Execute func(ctx context.Context) error
	Created time.Time
}

// WorkerPool runs submitted tasks on a fixed set of goroutines that share a
// bounded queue. Stop closes the queue and lets the workers drain it.
type WorkerPool struct {
	taskQueue chan Task
	wg        sync.WaitGroup
	logger    *logrus.Logger
	config    WorkerPoolConfig

	// Métricas
	totalTasks     int64
	activeTasks    int64
	completedTasks int64
	failedTasks    int64
	rejectedTasks  int64

	// Controle
	isRunning bool
	stopped   bool
	mutex     sync.RWMutex
}

// WorkerPoolConfig configuração do pool de workers
type WorkerPoolConfig struct {
	Name            string        `yaml:"name"`
	MaxWorkers      int           `yaml:"max_workers"`
	QueueSize       int           `yaml:"queue_size"`
	WorkerTimeout   time.Duration `yaml:"worker_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NewWorkerPool cria um novo pool de workers
func NewWorkerPool(config WorkerPoolConfig, logger *logrus.Logger) *WorkerPool {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = runtime.NumCPU()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.MaxWorkers * 10
	}
	if config.WorkerTimeout == 0 {
		config.WorkerTimeout = 30 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 30 * time.Second
	}

	return &WorkerPool{
		taskQueue: make(chan Task, config.QueueSize),
		logger:    logger,
		config:    config,
	}
}

// Start inicia o pool de workers. A pool cannot be restarted after Stop.
func (wp *WorkerPool) Start() error {
	wp.mutex.Lock()
	defer wp.mutex.Unlock()

	if wp.stopped {
		return ErrPoolStopped
	}
	if wp.isRunning {
		return nil
	}

	wp.logger.WithFields(logrus.Fields{
		"pool":        wp.config.Name,
		"max_workers": wp.config.MaxWorkers,
		"queue_size":  wp.config.QueueSize,
	}).Info("Starting worker pool")

	for i := 0; i < wp.config.MaxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.isRunning = true
	return nil
}

// Stop stops accepting tasks and waits up to ShutdownTimeout for queued and
// in-flight tasks to finish. Tasks are never cancelled by Stop. It returns
// ErrTimeout when the wait gave up before the queue drained.
func (wp *WorkerPool) Stop() error {
	wp.mutex.Lock()
	if !wp.isRunning {
		wp.mutex.Unlock()
		return nil
	}
	wp.isRunning = false
	wp.stopped = true
	close(wp.taskQueue)
	wp.mutex.Unlock()

	wp.logger.WithFields(logrus.Fields{
		"pool":         wp.config.Name,
		"queued_tasks": len(wp.taskQueue),
	}).Info("Stopping worker pool")

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.logger.WithField("pool", wp.config.Name).Info("Worker pool stopped gracefully")
		return nil
	case <-time.After(wp.config.ShutdownTimeout):
		wp.logger.WithFields(logrus.Fields{
			"pool":         wp.config.Name,
			"active_tasks": atomic.LoadInt64(&wp.activeTasks),
			"queued_tasks": len(wp.taskQueue),
		}).Warn("Worker pool shutdown timeout")
		return ErrTimeout
	}
}

// SubmitTask submete uma tarefa para o pool sem bloquear.
func (wp *WorkerPool) SubmitTask(task Task) error {
	wp.mutex.RLock()
	defer wp.mutex.RUnlock()

	if !wp.isRunning {
		return ErrPoolNotRunning
	}

	task.Created = time.Now()
	atomic.AddInt64(&wp.totalTasks, 1)

	select {
	case wp.taskQueue <- task:
		return nil
	default:
		atomic.AddInt64(&wp.rejectedTasks, 1)
		return ErrQueueFull
	}
}

// GetStats retorna estatísticas do pool
func (wp *WorkerPool) GetStats() WorkerPoolStats {
	wp.mutex.RLock()
	running := wp.isRunning
	wp.mutex.RUnlock()

	return WorkerPoolStats{
		MaxWorkers:     wp.config.MaxWorkers,
		QueuedTasks:    len(wp.taskQueue),
		QueueSize:      wp.config.QueueSize,
		TotalTasks:     atomic.LoadInt64(&wp.totalTasks),
		ActiveTasks:    atomic.LoadInt64(&wp.activeTasks),
		CompletedTasks: atomic.LoadInt64(&wp.completedTasks),
		FailedTasks:    atomic.LoadInt64(&wp.failedTasks),
		RejectedTasks:  atomic.LoadInt64(&wp.rejectedTasks),
		IsRunning:      running,
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.WithField("worker_id", id).Debug("Worker started")

	for task := range wp.taskQueue {
		wp.executeTask(id, task)
	}

	wp.logger.WithField("worker_id", id).Debug("Worker stopping")
}

// executeTask executa uma tarefa
func (wp *WorkerPool) executeTask(workerID int, task Task) {
	atomic.AddInt64(&wp.activeTasks, 1)
	defer atomic.AddInt64(&wp.activeTasks, -1)

	startTime := time.Now()

	taskCtx, cancel := context.WithTimeout(context.Background(), wp.config.WorkerTimeout)
	defer cancel()

	err := wp.safeExecute(taskCtx, task)
	duration := time.Since(startTime)

	if err != nil {
		atomic.AddInt64(&wp.failedTasks, 1)
		wp.logger.WithFields(logrus.Fields{
			"worker_id": workerID,
			"task_id":   task.ID,
			"duration":  duration,
			"error":     err,
		}).Debug("Task execution failed")
		return
	}

	atomic.AddInt64(&wp.completedTasks, 1)
	wp.logger.WithFields(logrus.Fields{
		"worker_id":  workerID,
		"task_id":    task.ID,
		"duration":   duration,
		"queue_wait": startTime.Sub(task.Created),
	}).Debug("Task completed successfully")
}

func (wp *WorkerPool) safeExecute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Execute(ctx)
}

// WorkerPoolStats estatísticas do pool
type WorkerPoolStats struct {
	MaxWorkers     int   `json:"max_workers"`
	QueuedTasks    int   `json:"queued_tasks"`
	QueueSize      int   `json:"queue_size"`
	TotalTasks     int64 `json:"total_tasks"`
	ActiveTasks    int64 `json:"active_tasks"`
	CompletedTasks int64 `json:"completed_tasks"`
	FailedTasks    int64 `json:"failed_tasks"`
	RejectedTasks  int64 `json:"rejected_tasks"`
	IsRunning      bool  `json:"is_running"`
}

// Erros
var (
	ErrPoolNotRunning = fmt.Errorf("worker pool is not running")
	ErrPoolStopped    = fmt.Errorf("worker pool has been stopped")
	ErrQueueFull      = fmt.Errorf("task queue is full")
	ErrTimeout        = fmt.Errorf("worker pool shutdown timeout")
)
