package server

import (
	"quill/internal/service"

	"github.com/gofiber/fiber/v2"
)

func listPostsInput(c *fiber.Ctx) service.ListPostsInput {
	return service.ListPostsInput{
		Page:      parsePage(c),
		Status:    c.Query("status"),
		Category:  c.Query("category"),
		Author:    c.Query("author"),
		Tag:       c.Query("tag"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
}

// ListPosts returns published posts, or any status for moderators passing status.
func (s *Server) ListPosts(c *fiber.Ctx) error {
	list, err := s.postService.List(c.UserContext(), currentUser(c), listPostsInput(c))
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, list)
}

// MyPosts returns the caller's posts in any status.
func (s *Server) MyPosts(c *fiber.Ctx) error {
	list, err := s.postService.ListMine(c.UserContext(), currentUser(c), listPostsInput(c))
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, list)
}

// PendingPosts returns the approval queue.
func (s *Server) PendingPosts(c *fiber.Ctx) error {
	list, err := s.postService.ListPending(c.UserContext(), currentUser(c), parsePage(c))
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, list)
}

func (s *Server) GetPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.Get(c.UserContext(), currentUser(c), id)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"post": post})
}

func (s *Server) CreatePost(c *fiber.Ctx) error {
	var in service.CreatePostInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	post, err := s.postService.Create(c.UserContext(), currentUser(c), in)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusCreated, fiber.Map{"post": post}, "Post created successfully")
}

func (s *Server) UpdatePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var in service.UpdatePostInput
	if err := parseBody(c, &in); err != nil {
		return err
	}
	post, err := s.postService.Update(c.UserContext(), currentUser(c), id, in)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"post": post}, "Post updated successfully")
}

func (s *Server) DeletePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	if err := s.postService.Delete(c.UserContext(), currentUser(c), id); err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, nil, "Post deleted successfully")
}

func (s *Server) SubmitPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.Submit(c.UserContext(), currentUser(c), id)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"post": post}, "Post submitted for approval")
}

func (s *Server) ApprovePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.Approve(c.UserContext(), currentUser(c), id)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"post": post}, "Post approved and published")
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) RejectPost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	var req rejectRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	post, err := s.postService.Reject(c.UserContext(), currentUser(c), id, req.Reason)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"post": post}, "Post rejected")
}

func (s *Server) ArchivePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	post, err := s.postService.Archive(c.UserContext(), currentUser(c), id)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"post": post}, "Post archived")
}

// LikePost toggles the caller's like.
func (s *Server) LikePost(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	liked, count, err := s.postService.ToggleLike(c.UserContext(), currentUser(c), id)
	if err != nil {
		return err
	}
	return respondSuccess(c, fiber.StatusOK, fiber.Map{"liked": liked, "likeCount": count})
}
