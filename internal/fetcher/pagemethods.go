package fetcher

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/crawlkit/browserfetch/pkg/types"
)

// pageMethodFunc executes one named page action against a live page.
type pageMethodFunc func(page playwright.Page, args []interface{}) (interface{}, error)

// pageMethodTable enumerates the page actions callers may request by name.
// Unknown names are skipped with a warning rather than failing the fetch.
var pageMethodTable = map[string]pageMethodFunc{
	"click": func(page playwright.Page, args []interface{}) (interface{}, error) {
		selector, err := argString(args, 0, "selector")
		if err != nil {
			return nil, err
		}
		return nil, page.Click(selector)
	},
	"fill": func(page playwright.Page, args []interface{}) (interface{}, error) {
		selector, err := argString(args, 0, "selector")
		if err != nil {
			return nil, err
		}
		value, err := argString(args, 1, "value")
		if err != nil {
			return nil, err
		}
		return nil, page.Fill(selector, value)
	},
	"evaluate": func(page playwright.Page, args []interface{}) (interface{}, error) {
		expression, err := argString(args, 0, "expression")
		if err != nil {
			return nil, err
		}
		if len(args) > 1 {
			return page.Evaluate(expression, args[1])
		}
		return page.Evaluate(expression)
	},
	"screenshot": func(page playwright.Page, args []interface{}) (interface{}, error) {
		opts := playwright.PageScreenshotOptions{}
		if len(args) > 0 {
			if fullPage, ok := args[0].(bool); ok {
				opts.FullPage = playwright.Bool(fullPage)
			}
		}
		return page.Screenshot(opts)
	},
	"wait_for_selector": func(page playwright.Page, args []interface{}) (interface{}, error) {
		selector, err := argString(args, 0, "selector")
		if err != nil {
			return nil, err
		}
		return page.WaitForSelector(selector)
	},
	"wait_for_load_state": func(page playwright.Page, args []interface{}) (interface{}, error) {
		state := playwright.LoadStateLoad
		if len(args) > 0 {
			name, err := argString(args, 0, "state")
			if err != nil {
				return nil, err
			}
			switch strings.ToLower(name) {
			case "load":
				state = playwright.LoadStateLoad
			case "domcontentloaded":
				state = playwright.LoadStateDomcontentloaded
			case "networkidle":
				state = playwright.LoadStateNetworkidle
			default:
				return nil, fmt.Errorf("unknown load state %q", name)
			}
		}
		return nil, page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{State: state})
	},
	"wait_for_timeout": func(page playwright.Page, args []interface{}) (interface{}, error) {
		timeout, err := argFloat(args, 0, "timeout")
		if err != nil {
			return nil, err
		}
		page.WaitForTimeout(timeout)
		return nil, nil
	},
	"title": func(page playwright.Page, _ []interface{}) (interface{}, error) {
		return page.Title()
	},
	"reload": func(page playwright.Page, _ []interface{}) (interface{}, error) {
		return page.Reload()
	},
}

func argString(args []interface{}, index int, name string) (string, error) {
	if index >= len(args) {
		return "", fmt.Errorf("missing %s argument", name)
	}
	value, ok := args[index].(string)
	if !ok {
		return "", fmt.Errorf("%s argument must be a string, got %T", name, args[index])
	}
	return value, nil
}

func argFloat(args []interface{}, index int, name string) (float64, error) {
	if index >= len(args) {
		return 0, fmt.Errorf("missing %s argument", name)
	}
	switch v := args[index].(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%s argument must be a number, got %T", name, args[index])
	}
}

// runPageMethod executes one requested action, storing the result back on the
// method so the caller can read it off the response. Actions supplied as a
// direct function bypass the table.
func (f *Fetcher) runPageMethod(page playwright.Page, method *types.PageMethod, contextName string) error {
	if method.Fn != nil {
		result, err := method.Fn(page)
		if err != nil {
			return fmt.Errorf("page method %q: %w", method.Name, err)
		}
		method.Result = result
		return nil
	}

	fn, ok := pageMethodTable[strings.ToLower(method.Name)]
	if !ok {
		f.logger.Warn("Ignoring unknown page method",
			zap.String("context", contextName),
			zap.String("method", method.Name))
		return nil
	}
	result, err := fn(page, method.Args)
	if err != nil {
		return fmt.Errorf("page method %q: %w", method.Name, err)
	}
	method.Result = result
	return nil
}

// attachEventHandlers registers caller-supplied page event listeners. String
// values name a method on the request's HandlerReceiver. A handler that does
// not match the event's signature is skipped with a warning so a bad listener
// never fails the fetch.
func (f *Fetcher) attachEventHandlers(page playwright.Page, req *types.FetchRequest, contextName string) {
	for event, raw := range req.EventHandlers {
		handler := raw
		if name, ok := raw.(string); ok {
			resolved, err := resolveHandler(req.HandlerReceiver, name)
			if err != nil {
				f.logger.Warn("Skipping unresolvable event handler",
					zap.String("context", contextName),
					zap.String("event", event),
					zap.Error(err))
				continue
			}
			handler = resolved
		}
		if !attachEventHandler(page, strings.ToLower(event), handler) {
			f.logger.Warn("Skipping event handler with unsupported signature",
				zap.String("context", contextName),
				zap.String("event", event),
				zap.String("handler_type", fmt.Sprintf("%T", handler)))
		}
	}
}

func resolveHandler(receiver interface{}, name string) (interface{}, error) {
	if receiver == nil {
		return nil, fmt.Errorf("handler %q named by string but no receiver given", name)
	}
	method := reflect.ValueOf(receiver).MethodByName(name)
	if !method.IsValid() {
		return nil, fmt.Errorf("receiver %T has no method %q", receiver, name)
	}
	return method.Interface(), nil
}

func attachEventHandler(page playwright.Page, event string, handler interface{}) bool {
	switch event {
	case "request":
		if fn, ok := handler.(func(playwright.Request)); ok {
			page.OnRequest(fn)
			return true
		}
	case "response":
		if fn, ok := handler.(func(playwright.Response)); ok {
			page.OnResponse(fn)
			return true
		}
	case "download":
		if fn, ok := handler.(func(playwright.Download)); ok {
			page.OnDownload(fn)
			return true
		}
	case "console":
		if fn, ok := handler.(func(playwright.ConsoleMessage)); ok {
			page.OnConsole(fn)
			return true
		}
	case "dialog":
		if fn, ok := handler.(func(playwright.Dialog)); ok {
			page.OnDialog(fn)
			return true
		}
	case "close":
		if fn, ok := handler.(func(playwright.Page)); ok {
			page.OnClose(fn)
			return true
		}
	case "crash":
		if fn, ok := handler.(func(playwright.Page)); ok {
			page.OnCrash(fn)
			return true
		}
	case "pageerror":
		if fn, ok := handler.(func(error)); ok {
			page.OnPageError(fn)
			return true
		}
	}
	return false
}
