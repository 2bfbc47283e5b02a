package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ARandomInvestor/amfeix-api/workers"
)

const (
	WorkerBalanceReconciler = 1
	WorkerRecordMonitor     = 2
)

type Server struct {
	quit    chan os.Signal
	finish  chan bool
	workers []workers.Worker
}

func NewServer(cfg *Config, env *workers.Environment) (*Server, error) {
	listWorkers := []workers.Worker{}

	if contain(cfg.Workers, WorkerBalanceReconciler) {
		balanceReconciler := &workers.BalanceReconciler{}
		err := balanceReconciler.Init(WorkerBalanceReconciler, "Balance Reconciler", cfg.WorkerFrequency, cfg.Network, env)
		if err != nil {
			return nil, fmt.Errorf("can't init Balance Reconciler: %w", err)
		}
		listWorkers = append(listWorkers, balanceReconciler)
	}
	if contain(cfg.Workers, WorkerRecordMonitor) {
		recordMonitor := &workers.ConfirmationRecordMonitor{}
		err := recordMonitor.Init(WorkerRecordMonitor, "Confirmation Record Monitor", cfg.WorkerFrequency, cfg.Network, env)
		if err != nil {
			return nil, fmt.Errorf("can't init Confirmation Record Monitor: %w", err)
		}
		listWorkers = append(listWorkers, recordMonitor)
	}

	quitChan := make(chan os.Signal, 1)
	return &Server{
		quit:    quitChan,
		finish:  make(chan bool, len(listWorkers)),
		workers: listWorkers,
	}, nil
}

func contain(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (s *Server) NotifyQuitSignal(workers []workers.Worker) {
	sig := <-s.quit
	fmt.Printf("Caught sig: %+v \n", sig)
	// notify all workers about quit signal
	for _, a := range workers {
		a.GetQuitChan() <- true
	}
}

func (s *Server) Run() {
	workers := s.workers
	go s.NotifyQuitSignal(workers)
	for _, a := range workers {
		go executeWorker(s.finish, a)
	}
}

func executeWorker(finish chan bool, worker workers.Worker) {
	worker.Execute() // execute as soon as starting up
	for {
		select {
		case <-worker.GetQuitChan():
			fmt.Printf("Task for %s done! \n", worker.GetName())
			finish <- true
			return
		case <-time.After(time.Duration(worker.GetFrequency()) * time.Second):
			worker.Execute()
		}
	}
}
