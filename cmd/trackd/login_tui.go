package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/trackd/internal/utils"
)

var errLoginCancelled = errors.New("login cancelled")

const (
	txtEmailPlaceholder    = "you@example.com"
	txtPasswordPlaceholder = "password"
	txtEmailPrompt         = "Enter your email address"
	txtPasswordPrompt      = "Enter the password for %s"
	txtLoggingIn           = "Logging in..."
	txtEmptyPassword       = "Password is required"
	txtLoginHelp           = "Press 'Enter' to submit. 'Esc' to go back or quit. 'Ctrl+C' to quit."
)

type loginField int

const (
	emailField loginField = iota
	passwordField
)

type loginTUIOpts struct {
	Email     string
	ServerURL string
	Submit    func(email, password string) error
}

type loginProcessedMsg struct{ err error }

type loginModel struct {
	opts *loginTUIOpts

	emailInput    textinput.Model
	passwordInput textinput.Model
	spinner       spinner.Model

	field        loginField
	isLoading    bool
	errorMessage string
	loggedIn     bool
}

func newLoginModel(opts *loginTUIOpts) loginModel {
	email := textinput.New()
	email.Placeholder = txtEmailPlaceholder
	email.CharLimit = 128
	email.Width = 48
	email.PromptStyle = green
	email.TextStyle = green
	email.PlaceholderStyle = gray
	email.SetValue(opts.Email)

	password := textinput.New()
	password.Placeholder = txtPasswordPlaceholder
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 256
	password.Width = 48
	password.PromptStyle = green
	password.TextStyle = green
	password.PlaceholderStyle = gray

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	m := loginModel{
		opts:          opts,
		emailInput:    email,
		passwordInput: password,
		spinner:       s,
	}
	if opts.Email != "" {
		m.field = passwordField
		m.passwordInput.Focus()
	} else {
		m.emailInput.Focus()
	}
	return m
}

func (m loginModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m loginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			return m.back()
		case tea.KeyEnter:
			if m.isLoading {
				return m, nil
			}
			return m.submit()
		}

		m.errorMessage = ""
		if m.emailInput.Focused() {
			m.emailInput, cmd = m.emailInput.Update(msg)
		} else if m.passwordInput.Focused() {
			m.passwordInput, cmd = m.passwordInput.Update(msg)
		}
		return m, cmd

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loginProcessedMsg:
		m.isLoading = false
		if msg.err != nil {
			m.errorMessage = fmt.Sprintf("%s %s", red.Bold(true).Render("ERROR:"), msg.err.Error())
			m.passwordInput.Reset()
			m.passwordInput.Focus()
			return m, textinput.Blink
		}
		m.loggedIn = true
		return m, tea.Quit
	}

	return m, nil
}

// back returns to the email field, or quits when already there
func (m loginModel) back() (tea.Model, tea.Cmd) {
	if m.field == passwordField && !m.isLoading {
		m.field = emailField
		m.passwordInput.Blur()
		m.passwordInput.Reset()
		m.emailInput.Focus()
		m.errorMessage = ""
		return m, textinput.Blink
	}
	return m, tea.Quit
}

func (m loginModel) submit() (tea.Model, tea.Cmd) {
	m.errorMessage = ""

	switch m.field {
	case emailField:
		email, err := utils.NormalizeEmail(m.emailInput.Value())
		if err != nil {
			m.errorMessage = err.Error()
			return m, nil
		}
		m.emailInput.SetValue(email)
		m.emailInput.Blur()
		m.field = passwordField
		m.passwordInput.Focus()
		return m, textinput.Blink

	default:
		password := m.passwordInput.Value()
		if password == "" {
			m.errorMessage = txtEmptyPassword
			return m, nil
		}
		m.isLoading = true
		m.passwordInput.Blur()

		email := m.emailInput.Value()
		submit := m.opts.Submit
		return m, func() tea.Msg {
			return loginProcessedMsg{err: submit(email, password)}
		}
	}
}

func (m loginModel) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s\n\n", gray.Render("Server  "), green.Render(m.opts.ServerURL))

	switch m.field {
	case emailField:
		b.WriteString(txtEmailPrompt)
		b.WriteString("\n\n")
		b.WriteString(m.emailInput.View())
	case passwordField:
		fmt.Fprintf(&b, txtPasswordPrompt, green.Render(m.emailInput.Value()))
		b.WriteString("\n\n")
		b.WriteString(m.passwordInput.View())
	}

	if m.isLoading {
		fmt.Fprintf(&b, "\n\n%s %s", m.spinner.View(), txtLoggingIn)
	}
	if m.errorMessage != "" {
		b.WriteString("\n\n")
		b.WriteString(red.Render(m.errorMessage))
	}
	b.WriteString("\n\n")
	b.WriteString(gray.Render(txtLoginHelp))
	b.WriteString("\n")
	return b.String()
}

// runLoginTUI prompts for the missing credentials and calls opts.Submit until
// it succeeds or the user quits
func runLoginTUI(ctx context.Context, in io.Reader, out io.Writer, opts loginTUIOpts) error {
	model, err := tea.NewProgram(newLoginModel(&opts),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	).Run()
	if err != nil {
		return fmt.Errorf("login prompt: %w", err)
	}

	if fm, ok := model.(loginModel); ok && fm.loggedIn {
		return nil
	}
	return errLoginCancelled
}
