// Package i18n holds the user-facing notification catalog. English text
// doubles as the message key; Brazilian Portuguese is the other shipped
// locale.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Default is the tag used when no locale is configured.
var Default = language.AmericanEnglish

func init() {
	ptBR := language.BrazilianPortuguese

	for _, entry := range []struct{ key, pt string }{
		{"Welcome back!", "Bem-vindo de volta!"},
		{"You have signed in successfully.", "Login realizado com sucesso."},
		{"Sign-in failed", "Falha no login"},
		{"Sign-in failed. Try again.", "Falha no login. Tente novamente."},
		{"Incorrect email or password.", "Email ou senha incorretos."},
		{"Too many sign-in attempts. Try again later.", "Muitas tentativas de login. Tente novamente mais tarde."},
		{"This account has been disabled.", "Esta conta foi desativada."},
		{"Account created!", "Conta criada!"},
		{"You have registered successfully.", "Você se registrou com sucesso."},
		{"Registration failed", "Falha no registro"},
		{"Registration failed. Try again.", "Erro no registro. Tente novamente."},
		{"This email is already in use by another account.", "Este email já está sendo usado por outra conta."},
		{"Password must be at least 6 characters.", "A senha deve ter pelo menos 6 caracteres."},
		{"Invalid email.", "Email inválido."},
		{"Signed out", "Desconectado"},
		{"You have signed out of your account.", "Você saiu da sua conta com sucesso."},
		{"Sign-out failed", "Falha ao sair"},
		{"Sign-out failed. Try again.", "Falha ao sair. Tente novamente."},
		{"Error", "Erro"},
		{"User", "Usuário"},
		{"Image sent", "Imagem enviada"},
		{"Could not send the message. Try again.", "Não foi possível enviar a mensagem. Tente novamente."},
		{"Only image attachments are allowed.", "Por favor, selecione apenas imagens."},
		{"The image must be smaller than 5MB.", "A imagem deve ter menos de 5MB."},
		{"Chat created", "Conversa criada"},
		{"Your chat has been created successfully.", "Sua conversa foi criada com sucesso."},
		{"Failed to create chat", "Falha ao criar a conversa"},
		{"An error occurred. Please try again.", "Ocorreu um erro. Tente novamente."},
	} {
		if err := message.SetString(ptBR, entry.key, entry.pt); err != nil {
			panic(err)
		}
	}
}

// Printer returns a printer for the given BCP 47 tag, or the default when the
// tag does not parse.
func Printer(tag string) *message.Printer {
	t, err := language.Parse(tag)
	if err != nil {
		t = Default
	}
	return message.NewPrinter(t)
}
