package application

import (
	"net/http"
	"testing"
	"testing/fstest"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type keyedController struct{ key string }

func (c keyedController) Register(r *mux.Router) {
	r.HandleFunc(c.key, func(w http.ResponseWriter, r *http.Request) {})
}

func (c keyedController) Key() string { return c.key }

type widgetService struct{ name string }

func TestApplication_ControllersSortedByKey(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterControllers(keyedController{"/z"}, keyedController{"/a"}, keyedController{"/m"})
	app.RegisterControllers(keyedController{"/a"})

	var keys []string
	for _, c := range app.Controllers() {
		keys = append(keys, c.Key())
	}
	require.Equal(t, []string{"/a", "/m", "/z"}, keys)
}

func TestApplication_ServiceRegistry(t *testing.T) {
	app := New(&ApplicationOptions{})
	svc := &widgetService{name: "payroll"}
	app.RegisterServices(svc)

	got := app.Service(widgetService{}).(*widgetService)
	require.Same(t, svc, got)
	require.Panics(t, func() { app.Service(keyedController{}) })
}

func TestMigrationManager_RegisterSchema(t *testing.T) {
	m := NewMigrationManager().(*migrationManager)
	m.RegisterSchema("payroll", fstest.MapFS{"00001_init.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")}})
	require.Len(t, m.schemas, 1)
	require.Equal(t, "payroll", m.schemas[0].name)
}
