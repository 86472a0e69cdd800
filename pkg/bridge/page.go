package bridge

// Page is the web view showing the wallet page. It is only called from the
// MainLoop goroutine.
type Page interface {
	// EvaluateScript runs (or, for hosts that serve it, publishes) script in the page.
	EvaluateScript(script string)
	// Post delivers an envelope to the page's dispatcher.
	Post(env Envelope)
	// Alert shows a blocking message to the user.
	Alert(message string)
}

// Chrome is the host UI around the page.
type Chrome interface {
	SetDisplayedURL(url string)
	SetNavigationVisible(visible bool)
}

type nopChrome struct{}

func (nopChrome) SetDisplayedURL(string)    {}
func (nopChrome) SetNavigationVisible(bool) {}
