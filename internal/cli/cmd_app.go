package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	flag "github.com/spf13/pflag"

	"github.com/regro/regolith/internal/chain"
	"github.com/regro/regolith/internal/rc"
	"github.com/regro/regolith/internal/store"
)

const shutdownTimeout = 5 * time.Second

// AppCmd returns the app command.
func AppCmd(cfg *rc.Config) *Command {
	flags := flag.NewFlagSet("app", flag.ContinueOnError)
	flags.String("addr", "127.0.0.1:5000", "Address to listen on")

	return &Command{
		Flags:   flags,
		Usage:   "app",
		Short:   "Browse the chained view over HTTP",
		NeedsRC: true,
		Long: `Serve a read-only JSON view of every database until interrupted.

  GET /api/databases
  GET /api/collections
  GET /api/collections/{coll}
  GET /api/collections/{coll}/{id}`,
		Exec: func(ctx context.Context, io *IO, _ []string) error {
			addr, _ := flags.GetString("addr")

			return withStore(ctx, cfg, func(c *store.Client) error {
				return serveApp(ctx, io, addr, AppHandler(c))
			})
		},
	}
}

// AppSource is what the app reads from.
type AppSource interface {
	ListDatabases(ctx context.Context) ([]string, error)
	Collections(ctx context.Context) ([]string, error)
	AllDocuments(ctx context.Context, coll string, copy bool) ([]store.Document, error)
	ChainCollection(ctx context.Context, coll string) (*chain.Chain, error)
}

// AppHandler returns the HTTP handler of the app command.
func AppHandler(src AppSource) http.Handler {
	s := &appServer{src: src}

	router := mux.NewRouter()
	router.HandleFunc("/api/databases", s.getDatabases).Methods("GET").Name("GetDatabases")
	router.HandleFunc("/api/collections", s.getCollections).Methods("GET").Name("GetCollections")
	router.HandleFunc("/api/collections/{coll}", s.getCollection).Methods("GET").Name("GetCollection")
	router.HandleFunc("/api/collections/{coll}/{id}", s.getDocument).Methods("GET").Name("GetDocument")

	return router
}

type appServer struct {
	src AppSource
}

// GET /api/databases
func (s *appServer) getDatabases(w http.ResponseWriter, r *http.Request) {
	dbs, err := s.src.ListDatabases(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	writeJSON(w, dbs)
}

// GET /api/collections
func (s *appServer) getCollections(w http.ResponseWriter, r *http.Request) {
	colls, err := s.src.Collections(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	writeJSON(w, colls)
}

// GET /api/collections/{coll}
func (s *appServer) getCollection(w http.ResponseWriter, r *http.Request) {
	docs, err := s.src.AllDocuments(r.Context(), mux.Vars(r)["coll"], false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	writeJSON(w, docs)
}

// GET /api/collections/{coll}/{id}
func (s *appServer) getDocument(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	view, err := s.src.ChainCollection(r.Context(), vars["coll"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	doc, ok := view.Get(vars["id"])
	if !ok {
		http.Error(w, store.ErrDocumentNotFound.Error(), http.StatusNotFound)

		return
	}

	writeJSON(w, chain.ToPlain(doc))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		glog.Warningf("app: encode response: %v", err)
	}
}

// serveApp serves h on addr until ctx is canceled.
func serveApp(ctx context.Context, io *IO, addr string, h http.Handler) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}

	io.Printf("serving on http://%s\n", ln.Addr())

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
