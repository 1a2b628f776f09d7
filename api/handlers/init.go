package handlers

import (
	"github.com/robinmail/dnsguard/internal/repository"
	"github.com/robinmail/dnsguard/services"
)

type APIHandlers struct {
	Domains   *DomainHandler
	Dkim      *DkimHandler
	Providers *ProviderHandler
	MtaSts    *MtaStsHandler
}

func InitHandlers(s *services.Services, repos *repository.Repositories) *APIHandlers {
	return &APIHandlers{
		Domains:   NewDomainHandler(s.DomainService, s.VerificationService, s.DiscoveryService, repos),
		Dkim:      NewDkimHandler(s.DkimService),
		Providers: NewProviderHandler(s.ProviderService),
		MtaSts:    NewMtaStsHandler(s.MtaStsService),
	}
}
