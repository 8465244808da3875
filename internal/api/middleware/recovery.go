package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"marketmanager/pkg/utils"
)

// Recovery catches a panic in any downstream handler, logs it with a stack
// trace, and returns 500 instead of letting the panic kill the server.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				utils.L().WithComponent("api").Error("panic in handler",
					utils.String("path", r.URL.Path),
					utils.String("panic", fmt.Sprint(err)),
					utils.String("stack", string(debug.Stack())),
				)
				http.Error(w, fmt.Sprintf("Internal Server Error: %v", err), http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
