// Package api assembles the HTTP surface of the fraud ledger service.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/fraud-ledger/internal/api/handlers"
	"github.com/dvloznov/fraud-ledger/internal/api/middleware"
	"github.com/dvloznov/fraud-ledger/internal/jobs"
)

// Deps are the collaborators behind the routes.
type Deps struct {
	Transactions handlers.TransactionRecorder
	Aggregates   handlers.AggregateGetter
	Records      handlers.RecordFinder
	Ledger       handlers.LedgerReader
	Jobs         jobs.JobStore
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	APIKey   string
	Logger   zerolog.Logger
}

// NewRouter returns the routed handler wrapped in the middleware chain.
func NewRouter(deps Deps) http.Handler {
	log := deps.Logger

	transactionsHandler := handlers.NewTransactionsHandler(deps.Transactions, log)
	companiesHandler := handlers.NewCompaniesHandler(deps.Aggregates, log)
	ledgerHandler := handlers.NewLedgerHandler(deps.Ledger, log)
	submissionsHandler := handlers.NewSubmissionsHandler(deps.Jobs, log)
	recordsHandler := handlers.NewRecordsHandler(deps.Records, log)

	mux := http.NewServeMux()

	// Transactions endpoints
	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			transactionsHandler.RecordTransaction(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Records endpoints
	mux.HandleFunc("/api/records", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			recordsHandler.FindRecord(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/records/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		recordID := strings.TrimPrefix(r.URL.Path, "/api/records/")
		if recordID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Record ID is required")
			return
		}
		recordsHandler.GetRecord(w, r, recordID)
	})

	// Companies endpoints
	mux.HandleFunc("/api/companies/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		companyID := strings.TrimPrefix(r.URL.Path, "/api/companies/")
		if companyID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Company ID is required")
			return
		}
		companiesHandler.GetCompany(w, r, companyID)
	})

	// Ledger endpoints
	mux.HandleFunc("/api/ledger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			ledgerHandler.ListEntries(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/ledger/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		ledgerHandler.GetEntry(w, r, strings.TrimPrefix(r.URL.Path, "/api/ledger/"))
	})

	// Submissions endpoints
	mux.HandleFunc("/api/submissions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			submissionsHandler.ListSubmissions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/submissions/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/submissions/")
		if jobID, ok := strings.CutSuffix(path, "/resolve"); ok {
			if r.Method != http.MethodPost {
				middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
				return
			}
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Submission ID is required")
				return
			}
			submissionsHandler.ResolveSubmission(w, r, jobID)
			return
		}

		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		if path == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Submission ID is required")
			return
		}
		submissionsHandler.GetSubmission(w, r, path)
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if deps.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(deps.APIKey)(mux),
				),
			),
		),
	)
}
