// Package route names the client views the API can send a shopper to.
//
// Route is a closed set: each variant is a distinct type implementing the
// unexported marker, so a new view must provide its own Path and every
// type switch over routes is visible to the compiler.
package route

import (
	"net/url"
	"strings"

	"github.com/go-faster/errors"
)

// Route is a client view.
type Route interface {
	// Path is the client-side location of the view.
	Path() string
	route()
}

type (
	// Home is the storefront landing grid.
	Home struct{}
	// Details shows a single product.
	Details struct{ ProductID string }
	// Cart shows the current cart.
	Cart struct{}
	// Checkout is the order submission form.
	Checkout struct{}
	// Login is the identity provider's entry point. Return is where the
	// shopper goes after signing in; nil means Home.
	Login struct{ Return Route }
	// Admin is the inventory dashboard.
	Admin struct{}
	// Orders lists the shopper's past orders.
	Orders struct{}
	// Receipt confirms a placed order.
	Receipt struct{ OrderID string }
)

func (Home) route() {}
func (Details) route() {}
func (Cart) route() {}
func (Checkout) route() {}
func (Login) route() {}
func (Admin) route() {}
func (Orders) route() {}
func (Receipt) route() {}

func (Home) Path() string { return "/" }
func (r Details) Path() string { return "/products/" + url.PathEscape(r.ProductID) }
func (Cart) Path() string { return "/cart" }
func (Checkout) Path() string { return "/checkout" }
func (Admin) Path() string { return "/admin" }
func (Orders) Path() string { return "/orders" }
func (r Receipt) Path() string { return "/orders/" + url.PathEscape(r.OrderID) }

func (r Login) Path() string {
	if r.Return == nil {
		return "/login"
	}
	return "/login?return=" + url.QueryEscape(r.Return.Path())
}

// ErrUnknown is returned by Parse for paths that name no view.
var ErrUnknown = errors.New("unknown route")

// Parse is the inverse of Path.
func Parse(raw string) (Route, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parse route")
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	switch {
	case u.Path == "/" || u.Path == "":
		return Home{}, nil
	case len(segments) == 1:
		switch segments[0] {
		case "cart":
			return Cart{}, nil
		case "checkout":
			return Checkout{}, nil
		case "admin":
			return Admin{}, nil
		case "orders":
			return Orders{}, nil
		case "login":
			ret := u.Query().Get("return")
			if ret == "" {
				return Login{}, nil
			}
			next, err := Parse(ret)
			if err != nil {
				return nil, err
			}
			return Login{Return: next}, nil
		}
	case len(segments) == 2 && segments[1] != "":
		id, err := url.PathUnescape(segments[1])
		if err != nil {
			return nil, errors.Wrap(err, "unescape id")
		}
		switch segments[0] {
		case "products":
			return Details{ProductID: id}, nil
		case "orders":
			return Receipt{OrderID: id}, nil
		}
	}
	return nil, errors.Wrapf(ErrUnknown, "%q", raw)
}
