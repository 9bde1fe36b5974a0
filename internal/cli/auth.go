package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"vlab/internal/api"
	"vlab/internal/store"

	"github.com/spf13/cobra"
)

// LoginCmd authenticates against the backend and persists the bearer token
// locally. With --remember the email is kept for the next login prompt.
func LoginCmd(env *Env) *cobra.Command {
	var email string
	var password string
	var remember bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store the access token",
		Run: func(cmd *cobra.Command, args []string) {
			s, err := env.openStore()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer s.Close()

			reader := bufio.NewReader(os.Stdin)
			if email == "" {
				prompt := "Email: "
				if remembered, _ := s.Credential(store.CredRememberedEmail); remembered != "" {
					prompt = fmt.Sprintf("Email [%s]: ", remembered)
					fmt.Print(prompt)
					line, _ := reader.ReadString('\n')
					email = strings.TrimSpace(line)
					if email == "" {
						email = remembered
					}
				} else {
					fmt.Print(prompt)
					line, _ := reader.ReadString('\n')
					email = strings.TrimSpace(line)
				}
			}
			if password == "" {
				fmt.Print("Password: ")
				line, _ := reader.ReadString('\n')
				password = strings.TrimSpace(line)
			}
			if email == "" || password == "" {
				fmt.Println("Email and password are required.")
				return
			}

			client := env.newClient(s)
			token, err := client.Login(context.Background(), email, password)
			if err != nil {
				fmt.Printf("Login failed: %s\n", api.ErrorMessage(err, "could not reach the server"))
				return
			}
			if token.AccessToken == "" {
				fmt.Println("Login failed: no token received.")
				return
			}

			if err := s.SetCredential(store.CredAccessToken, token.AccessToken); err != nil {
				fmt.Printf("Failed to persist token: %v\n", err)
				return
			}
			if token.TokenType != "" {
				_ = s.SetCredential(store.CredTokenType, token.TokenType)
			}
			if remember {
				_ = s.SetCredential(store.CredRememberedEmail, email)
			} else {
				_ = s.DeleteCredential(store.CredRememberedEmail)
			}

			// Cache the profile email for the status display; a failure here
			// doesn't undo the login.
			if profile, err := client.CurrentUser(context.Background()); err == nil {
				_ = s.SetCredential(store.CredUserEmail, profile.Email)
			}

			fmt.Printf("Logged in as %s.\n", email)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted when omitted)")
	cmd.Flags().BoolVar(&remember, "remember", false, "remember the email for the next login")
	return cmd
}

// LogoutCmd drops the persisted token.
func LogoutCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored access token",
		Run: func(cmd *cobra.Command, args []string) {
			s, err := env.openStore()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer s.Close()

			if err := s.ClearAuth(); err != nil {
				fmt.Printf("Failed to clear credentials: %v\n", err)
				return
			}
			fmt.Println("Logged out.")
		},
	}
}

// WhoamiCmd shows the authenticated user's profile.
func WhoamiCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the authenticated user",
		Run: func(cmd *cobra.Command, args []string) {
			s, err := env.openStore()
			if err != nil {
				fmt.Println(err)
				return
			}
			defer s.Close()

			client := env.newClient(s)
			profile, err := client.CurrentUser(context.Background())
			if err != nil {
				fmt.Printf("Not logged in: %s\n", api.ErrorMessage(err, "could not fetch the user profile"))
				return
			}

			fmt.Printf("Email: %s\n", profile.Email)
			if profile.FullName != "" {
				fmt.Printf("Name:  %s\n", profile.FullName)
			}
		},
	}
}
