// Package spider contains the httpbin example spider. It posts a form to
// httpbin's delay endpoint once per page and logs the origin address
// httpbin saw, which shows whether the request left through a proxy.
package spider
