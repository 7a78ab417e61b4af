package render

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
)

type CallbackPageData struct {
	Success   bool
	ErrorMsg  string
	ReturnURL string
}

// NewViewEngine builds the fiber view engine for HTML pages, reading from
// tmplDir when set and from the embedded templates otherwise.
func NewViewEngine(tmplDir string) *html.Engine {
	if tmplDir != "" {
		return html.New(tmplDir, ".html")
	}
	return html.NewFileSystem(http.FS(ViewsFS()), ".html")
}

// RenderCallbackPage renders the result page shown in the browser after the
// provider redirects back.
func RenderCallbackPage(ctx *fiber.Ctx, data CallbackPageData) error {
	name, status := "callback-success", fiber.StatusOK
	if !data.Success {
		name, status = "callback-failure", fiber.StatusBadRequest
	}
	return ctx.Status(status).Render(name, mergeVars(fiber.Map{
		"errorMsg":  data.ErrorMsg,
		"returnURL": data.ReturnURL,
	}))
}
