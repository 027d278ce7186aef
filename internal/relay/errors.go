package relay

import "errors"

// Taxonomia de erros do relay. Handlers de webhook traduzem cada um em
// resposta HTTP: assinatura inválida vira 403; duplicata e entidade não
// resolvida viram sucesso (para a plataforma de origem não reentregar).
var (
	ErrInvalidSignature = errors.New("relay: assinatura inválida")
	ErrDuplicateMessage = errors.New("relay: mensagem já processada")
	ErrInstanceUnknown  = errors.New("relay: instância não resolvida")
	ErrNoBinding        = errors.New("relay: instância sem linha vinculada")
	ErrNoConversation   = errors.New("relay: conversa não resolvida")
)

// acked cobre os desfechos que encerram o evento como reconhecido: a origem
// recebe sucesso e não reentrega.
func acked(err error) bool {
	return errors.Is(err, ErrDuplicateMessage) ||
		errors.Is(err, ErrInstanceUnknown) ||
		errors.Is(err, ErrNoBinding) ||
		errors.Is(err, ErrNoConversation)
}
