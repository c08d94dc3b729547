package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/panelproof/engine/internal/api/handlers"
	mw "github.com/panelproof/engine/internal/api/middleware"
)

type Dependencies struct {
	HMACSecret         []byte
	ProjectsHandler    *handlers.ProjectsHandler
	GeometryHandler    *handlers.GeometryHandler
	TransformsHandler  *handlers.TransformsHandler
	LayoutHandler      *handlers.LayoutHandler
	ValidationsHandler *handlers.ValidationsHandler
	OperationsHandler  *handlers.OperationsHandler
	ComplianceHandler  *handlers.ComplianceHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	// Built-in middleware
	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	// Health endpoints
	hh := handlers.NewHealthHandler()
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.HMACSecret))

			// Projects and their documents
			protected.Route("/projects", func(pr chi.Router) {
				pr.Get("/", dep.ProjectsHandler.List)
				pr.Get("/{id}", dep.ProjectsHandler.Get)
				pr.Get("/{id}/documents", dep.ProjectsHandler.Documents)
			})

			// Plan geometry extraction
			protected.Route("/geometry", func(gr chi.Router) {
				gr.Post("/extract", dep.GeometryHandler.Extract)
				gr.Get("/", dep.GeometryHandler.List)
				gr.Get("/latest", dep.GeometryHandler.Latest)
			})

			// Layout registration
			protected.Route("/transforms", func(tr chi.Router) {
				tr.Post("/register", dep.TransformsHandler.Register)
				tr.Get("/", dep.TransformsHandler.List)
				tr.Get("/active", dep.TransformsHandler.Active)
			})

			// Panel layout
			protected.Route("/layout", func(lr chi.Router) {
				lr.Get("/", dep.LayoutHandler.Get)
				lr.Put("/", dep.LayoutHandler.Save)
			})

			// Validators
			protected.Route("/validations", func(vr chi.Router) {
				vr.Post("/scale", dep.ValidationsHandler.Scale)
				vr.Post("/boundary", dep.ValidationsHandler.Boundary)
				vr.Post("/shape", dep.ValidationsHandler.Shape)
				vr.Get("/", dep.ValidationsHandler.List)
			})

			// Governed operations
			protected.Route("/operations", func(or chi.Router) {
				or.Post("/apply-transform", dep.OperationsHandler.ProposeApplyTransform)
				or.Post("/clamp", dep.OperationsHandler.ProposeClamp)
				or.Post("/shape-correction", dep.OperationsHandler.ProposeShapeCorrection)
				or.Get("/", dep.OperationsHandler.List)
				or.Get("/{id}", dep.OperationsHandler.Get)
				or.Post("/{id}/approve", dep.OperationsHandler.Approve)
				or.Post("/{id}/reject", dep.OperationsHandler.Reject)
				or.Post("/{id}/execute", dep.OperationsHandler.Execute)
			})

			// Orchestrated compliance runs
			protected.Route("/compliance", func(cr chi.Router) {
				cr.Post("/form", dep.ComplianceHandler.Form)
				cr.Post("/layout", dep.ComplianceHandler.Layout)
				cr.Post("/revalidate", dep.ComplianceHandler.Revalidate)
			})
		})
	})

	return r
}
