package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/tkartasl/lease-ledger/pkg/config"
	"github.com/tkartasl/lease-ledger/pkg/ledger"
	"github.com/tkartasl/lease-ledger/pkg/models"
	"github.com/tkartasl/lease-ledger/pkg/queue"
	"github.com/tkartasl/lease-ledger/pkg/schedule"
	"github.com/tkartasl/lease-ledger/pkg/store"
)

// Server holds the lease engine and its collaborators.
type Server struct {
	generator *schedule.Generator
	ledger    *ledger.Ledger
	storage   store.Storage // Keep a reference to the storage to close it
	queue     *queue.Queue
	log       *logrus.Logger
}

func NewServer(s store.Storage, q *queue.Queue, log *logrus.Logger) *Server {
	return &Server{
		generator: schedule.NewGenerator(),
		ledger:    ledger.NewLedger(s, log),
		storage:   s,
		queue:     q,
		log:       log,
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) createLeaseHandler(w http.ResponseWriter, r *http.Request) {
	var input models.LeaseInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	lease, err := s.generator.Generate(input)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.storage.CreateLease(lease); err != nil {
		s.log.WithError(err).Error("failed to create lease")
		writeError(w, http.StatusInternalServerError, "failed to create lease")
		return
	}

	writeJSON(w, http.StatusCreated, lease)
}

func (s *Server) getLeaseHandler(w http.ResponseWriter, r *http.Request) {
	leaseID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lease ID")
		return
	}

	lease, err := s.storage.GetLease(leaseID)
	if err != nil {
		if errors.Is(err, models.ErrLeaseNotFound) {
			writeError(w, http.StatusNotFound, "No lease contract found with this id")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, lease)
}

func (s *Server) listLeasesHandler(w http.ResponseWriter, r *http.Request) {
	leases, err := s.storage.ListLeases()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, leases)
}

// recordPaymentHandler is the synchronous payment path: validate against the
// schedule, record when valid, otherwise respond 400 and hand the rejection
// to the asynchronous corrector.
func (s *Server) recordPaymentHandler(w http.ResponseWriter, r *http.Request) {
	leaseID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lease ID")
		return
	}

	var payment models.Payment
	if err := json.NewDecoder(r.Body).Decode(&payment); err != nil {
		writeError(w, http.StatusBadRequest, "Payment data required")
		return
	}
	payment.LeaseID = leaseID
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}

	if payment.Amount.IsNegative() {
		writeError(w, http.StatusBadRequest, models.ErrPaymentAmountNegative.Error())
		return
	}

	lease, err := s.storage.GetLease(leaseID)
	if err != nil {
		if errors.Is(err, models.ErrLeaseNotFound) {
			writeError(w, http.StatusNotFound, "No lease contract found with this id")
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	validation, payment := ledger.Validate(payment, lease)

	if validation.Installment == nil {
		writeError(w, http.StatusNotFound, "No installment found with this id")
		return
	}

	if !validation.IsValid {
		// The corrector runs concurrently with the response encoding below,
		// so it gets its own deep copy of the lease and installment.
		instCopy := *validation.Installment
		s.queue.Enqueue(models.InvalidPayment{
			Lease:       lease.Clone(),
			DaysLate:    validation.DaysLate,
			Payment:     payment,
			Installment: &instCopy,
		})
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"message":     validation.Message,
			"daysLate":    validation.DaysLate,
			"lease":       lease,
			"payment":     payment,
			"installment": validation.Installment,
		})
		return
	}

	message, err := s.ledger.Record(payment, lease, validation.Installment)
	if err != nil {
		s.log.WithError(err).Error("failed to record payment")
		writeError(w, http.StatusInternalServerError, "failed to record payment")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

func (s *Server) listPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	leaseID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid lease ID")
		return
	}

	payments, err := s.storage.GetPaymentsForLease(leaseID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, payments)
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/leases", s.listLeasesHandler).Methods("GET")
	router.HandleFunc("/leases", s.createLeaseHandler).Methods("POST")
	router.HandleFunc("/leases/{id}", s.getLeaseHandler).Methods("GET")
	router.HandleFunc("/leases/{id}/payments", s.listPaymentsHandler).Methods("GET")
	router.HandleFunc("/leases/{id}/payments", s.recordPaymentHandler).Methods("POST")

	return router
}

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	sqliteStore, err := store.NewSQLiteStore(cfg.DB.Path)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite store: %v", err)
	}
	defer sqliteStore.Close()

	invalidPayments := queue.New(cfg.Queue.Size, log)
	server := NewServer(sqliteStore, invalidPayments, log)

	corrector := ledger.NewCorrector(server.ledger, invalidPayments, log)
	corrector.Start()
	defer corrector.Stop()

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Infof("Starting server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed: %v", err)
	}
}
