package service

import (
	"encoding/json"
	"fmt"
	"time"

	"netsource/internal/dto"
	"netsource/internal/model"
	"netsource/internal/repository"
	pkgErrors "netsource/pkg/errors"
	"netsource/pkg/utils"
)

type SecretsGroupService interface {
	Create(req *dto.CreateSecretsGroupRequest) (*dto.SecretsGroupResponse, error)
	GetByID(id int64) (*dto.SecretsGroupResponse, error)
	List(query *dto.PageQuery) ([]*dto.SecretsGroupResponse, int64, error)
	Update(req *dto.UpdateSecretsGroupRequest) (*dto.SecretsGroupResponse, error)
	Delete(id int64) error
}

type secretsGroupService struct {
	repo   repository.SecretsGroupRepository
	aesKey string
}

func NewSecretsGroupService(repo repository.SecretsGroupRepository, aesKey string) SecretsGroupService {
	return &secretsGroupService{repo: repo, aesKey: aesKey}
}

func (s *secretsGroupService) Create(req *dto.CreateSecretsGroupRequest) (*dto.SecretsGroupResponse, error) {
	existing, _ := s.repo.FindByName(req.Name)
	if existing != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeConflict,
			fmt.Sprintf("凭据组 %s 已存在", req.Name), nil)
	}

	encrypted, err := s.encrypt(req.Username, req.Token)
	if err != nil {
		return nil, err
	}

	group := &model.SecretsGroup{
		Name:          req.Name,
		Description:   req.Description,
		EncryptedData: encrypted,
	}
	if err := s.repo.Create(group); err != nil {
		return nil, err
	}

	return s.toResponse(group), nil
}

func (s *secretsGroupService) GetByID(id int64) (*dto.SecretsGroupResponse, error) {
	group, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(group), nil
}

func (s *secretsGroupService) List(query *dto.PageQuery) ([]*dto.SecretsGroupResponse, int64, error) {
	groups, total, err := s.repo.List(query.GetPage(), query.GetPageSize(), query.Keyword)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*dto.SecretsGroupResponse, len(groups))
	for i, group := range groups {
		responses[i] = s.toResponse(group)
	}
	return responses, total, nil
}

func (s *secretsGroupService) Update(req *dto.UpdateSecretsGroupRequest) (*dto.SecretsGroupResponse, error) {
	group, err := s.repo.FindByID(req.ID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil && *req.Name != group.Name {
		existing, _ := s.repo.FindByName(*req.Name)
		if existing != nil && existing.ID != req.ID {
			return nil, pkgErrors.Wrap(pkgErrors.CodeConflict,
				fmt.Sprintf("凭据组 %s 已存在", *req.Name), nil)
		}
		group.Name = *req.Name
	}
	if req.Description != nil {
		group.Description = req.Description
	}

	// token传入时整体替换凭据内容
	if req.Token != nil {
		username := ""
		if req.Username != nil {
			username = *req.Username
		}
		encrypted, err := s.encrypt(username, *req.Token)
		if err != nil {
			return nil, err
		}
		group.EncryptedData = encrypted
	}

	if err := s.repo.Save(group); err != nil {
		return nil, err
	}
	return s.toResponse(group), nil
}

func (s *secretsGroupService) Delete(id int64) error {
	if _, err := s.repo.FindByID(id); err != nil {
		return err
	}

	// 仍被仓库引用时拒绝删除
	refs, err := s.repo.CountReferences(id)
	if err != nil {
		return err
	}
	if refs > 0 {
		return pkgErrors.Wrap(pkgErrors.CodeConflict,
			fmt.Sprintf("凭据组仍被 %d 个Git仓库引用, 无法删除", refs), nil)
	}

	return s.repo.Delete(id)
}

// encrypt 将凭据明文加密为存储格式
func (s *secretsGroupService) encrypt(username, token string) (string, error) {
	plaintext, err := json.Marshal(map[string]string{
		"username": username,
		"token":    token,
	})
	if err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeInternalError, "编码凭据失败", err)
	}

	encrypted, err := utils.EncryptSecret(s.aesKey, string(plaintext))
	if err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeInternalError, "加密凭据失败", err)
	}
	return encrypted, nil
}

func (s *secretsGroupService) toResponse(group *model.SecretsGroup) *dto.SecretsGroupResponse {
	return &dto.SecretsGroupResponse{
		ID:          group.ID,
		Name:        group.Name,
		Description: group.Description,
		CreatedAt:   group.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   group.UpdatedAt.Format(time.RFC3339),
	}
}
